package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
	"github.com/wolfman30/jarvis-scheduler/internal/intent"
)

// FallbackReply is sent when nothing better can be produced.
func FallbackReply(ownerName string) string {
	return fmt.Sprintf("He recibido su mensaje. %s le contactará pronto.", ownerOr(ownerName))
}

func busyReply(ownerName string) string {
	return fmt.Sprintf("%s se encuentra ocupado en este momento, pero se comunicará con usted a la brevedad posible.", ownerOr(ownerName))
}

func postponedReply(ownerName string, at time.Time) string {
	return fmt.Sprintf("He registrado su solicitud. %s le contactará aproximadamente a las %s.", ownerOr(ownerName), at.Format("15:04"))
}

// maxListedOptions bounds the SMS body whatever MaxOfferedSlots is set to.
const maxListedOptions = 5

func offerReply(slots []availability.Slot, max int) string {
	if max <= 0 || max > maxListedOptions {
		max = maxListedOptions
	}
	return "Estos son los horarios disponibles:\n" +
		availability.FormatOptions(slots, max) +
		"\n¿Le confirmo el primer horario? Responda 'sí' para agendar o 'no' para cancelar."
}

func confirmedReply(ownerName string, slot availability.Slot) string {
	return fmt.Sprintf("✅ Su cita ha sido confirmada para el %s a las %s. %s le contactará para confirmar los detalles.",
		slot.Start.Format("02/01/2006"), slot.Start.Format("15:04"), ownerOr(ownerName))
}

func noAvailabilityReply(ownerName string) string {
	return fmt.Sprintf("Por el momento no hay horarios disponibles en los próximos días. %s se comunicará con usted para coordinar una cita.", ownerOr(ownerName))
}

const (
	retryLaterReply = "No pude confirmar la cita en este momento. Por favor intente de nuevo en unos minutos."
	closingReply    = "Entendido. Que tenga un excelente día."
)

func askCheckTimesReply(ownerName string) string {
	return fmt.Sprintf("¿Desea que revise los horarios disponibles para agendar una cita con %s?", ownerOr(ownerName))
}

func contextualSystemPrompt(ownerName, clientName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, el asistente personal de %s.\n", intent.AssistantName, ownerOr(ownerName))
	b.WriteString("- Responde de forma profesional y amable\n")
	b.WriteString("- Sé breve y conciso\n")
	fmt.Fprintf(&b, "- Si no puedes ayudar, indica que pasarás el mensaje a %s\n", ownerOr(ownerName))
	b.WriteString("- Nunca reveles información sensible")
	if clientName = strings.TrimSpace(clientName); clientName != "" {
		fmt.Fprintf(&b, "\nEstás hablando con %s.", clientName)
	}
	return b.String()
}

func ownerOr(ownerName string) string {
	if strings.TrimSpace(ownerName) == "" {
		return "El titular"
	}
	return strings.TrimSpace(ownerName)
}
