package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStructuredAnswer is returned when a model reply holds no decodable JSON object.
var ErrNoStructuredAnswer = errors.New("ai: no structured answer")

// ExtractJSONObject returns the first balanced {...} object in text. Models
// often wrap JSON in code fences or explanatory prose; both are tolerated.
// Braces inside JSON strings are ignored while balancing.
func ExtractJSONObject(text string) (string, bool) {
	text = stripCodeFence(text)
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeStructured extracts the first JSON object from text into dst. Every
// failure wraps ErrNoStructuredAnswer.
func DecodeStructured(text string, dst any) error {
	obj, ok := ExtractJSONObject(text)
	if !ok {
		return ErrNoStructuredAnswer
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrNoStructuredAnswer, err)
	}
	return nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
