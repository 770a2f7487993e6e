package intent

import (
	"fmt"
	"strings"
	"time"
)

const AssistantName = "Jarvis"

// Greeting picks the salutation for the local hour.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return "Buenos días"
	case h >= 12 && h < 18:
		return "Buenas tardes"
	default:
		return "Buenas noches"
	}
}

// FormalGreeting introduces the assistant on behalf of the owner.
func FormalGreeting(t time.Time, ownerName string) string {
	greeting := Greeting(t)
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		return greeting
	}
	return fmt.Sprintf("%s, mi nombre es %s, soy el asistente personal del Sr. %s. "+
		"¿Puedo ayudarlo programando alguna cita o recordándole que se comunique con usted en la brevedad?",
		greeting, AssistantName, ownerName)
}
