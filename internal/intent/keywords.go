package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Markers are matched against whole words of the folded message, so "si"
// never matches inside "visita". Multi-word markers must appear contiguously.
var (
	advertisementMarkers = []string{
		"promocion", "promociones", "oferta", "ofertas", "descuento", "descuentos",
		"publicidad", "suscribete", "ganaste", "ganador", "sorteo", "haz clic",
		"responde baja", "envia baja", "promo", "discount", "sale ends", "limited offer",
		"click here", "unsubscribe", "reply stop", "you won", "winner", "black friday",
	}
	changeMarkers = []string{
		"cambiar cita", "cambiar la cita", "cambiar mi cita", "cambio de cita",
		"mover la cita", "mover mi cita", "reprogramar", "reagendar",
		"cancelar cita", "cancelar la cita", "cancelar mi cita",
		"reschedule", "change appointment", "change my appointment",
		"move my appointment", "cancel appointment", "cancel my appointment",
	}
	requestMarkers = []string{
		"cita", "citas", "agendar", "agenda", "reservar", "reservacion", "reunion",
		"consulta", "disponibilidad", "horario", "horarios",
		"appointment", "schedule", "book", "booking", "meeting", "availability",
	}
	postponeMarkers = []string{
		"posponer", "pospon", "posponlo", "postergar", "posterga", "mas tarde",
		"en una hora", "al rato", "recuerdame", "recordarme",
		"postpone", "later", "remind me",
	}
	affirmativeMarkers = []string{
		"si", "claro", "ok", "okay", "vale", "dale", "de acuerdo", "por favor",
		"perfecto", "correcto", "adelante", "confirmo", "confirmar", "esta bien",
		"me parece bien", "yes", "yeah", "yep", "sure", "confirm", "sounds good",
	}
	negativeMarkers = []string{
		"no", "nop", "nope", "nah", "nunca", "ninguno", "ninguna", "rechazar",
		"cancelar", "cancel", "none", "stop",
	}
)

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases text and strips diacritics.
func Fold(text string) string {
	out, _, err := transform.String(folder, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

func words(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAny(tokens []string, markers []string) bool {
	for _, marker := range markers {
		if containsPhrase(tokens, strings.Fields(marker)) {
			return true
		}
	}
	return false
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

// HasAdvertisementMarker reports whether the message looks like promotional content.
func HasAdvertisementMarker(text string) bool {
	return containsAny(words(text), advertisementMarkers)
}

// HasPostponeMarker reports whether the sender asks to be contacted later.
func HasPostponeMarker(text string) bool {
	return containsAny(words(text), postponeMarkers)
}

// IsNegative reports whether the message declines.
func IsNegative(text string) bool {
	return containsAny(words(text), negativeMarkers)
}

// IsAffirmative reports whether the message accepts. A message carrying any
// negative marker is never affirmative.
func IsAffirmative(text string) bool {
	tokens := words(text)
	return containsAny(tokens, affirmativeMarkers) && !containsAny(tokens, negativeMarkers)
}

// keywordCategory applies the fixed marker priority.
func keywordCategory(text string) Category {
	tokens := words(text)
	switch {
	case containsAny(tokens, advertisementMarkers):
		return CategoryAdvertisement
	case containsAny(tokens, changeMarkers):
		return CategoryAppointmentChange
	case containsAny(tokens, requestMarkers):
		return CategoryAppointmentRequest
	default:
		return CategoryGeneralQuery
	}
}
