package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// DefaultCountryCode is prefixed to bare national numbers.
const DefaultCountryCode = "52"

// NormalizeE164 returns the value as +<digits>. Numbers already carrying a
// leading + keep their digits; bare ten-digit numbers get DefaultCountryCode.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(value, "+") {
		return "+" + digits
	}
	if strings.HasPrefix(digits, "00") && len(digits) > 4 {
		return "+" + strings.TrimPrefix(digits, "00")
	}
	if len(digits) == 10 {
		return "+" + DefaultCountryCode + digits
	}
	return "+" + digits
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
