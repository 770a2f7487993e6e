// Package intent maps inbound message text to an intent category.
package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/clients"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

type Category string

const (
	CategoryAppointmentRequest Category = "appointment_request"
	CategoryAppointmentChange  Category = "appointment_change"
	CategoryGeneralQuery       Category = "general_query"
	CategoryAdvertisement      Category = "advertisement"
	CategoryUnknown            Category = "unknown"
)

// IsAppointment reports whether the category is about booking.
func (c Category) IsAppointment() bool {
	return c == CategoryAppointmentRequest || c == CategoryAppointmentChange
}

func parseCategory(raw string) (Category, bool) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch c {
	case CategoryAppointmentRequest, CategoryAppointmentChange, CategoryGeneralQuery,
		CategoryAdvertisement, CategoryUnknown:
		return c, true
	}
	return "", false
}

// Source records which path produced an Analysis.
type Source string

const (
	SourceAI       Source = "ai"
	SourceKeywords Source = "keywords"
)

const keywordConfidence = 0.5

// Analysis is the structured reading of one message.
type Analysis struct {
	Intent           Category `json:"intent"`
	ClientName       string   `json:"client_name,omitempty"`
	ProposedDate     string   `json:"proposed_date,omitempty"`
	ProposedTime     string   `json:"proposed_time,omitempty"`
	Confidence       float64  `json:"confidence"`
	RequiresResponse bool     `json:"requires_response"`
	SuggestedReply   string   `json:"suggested_reply,omitempty"`
	Source           Source   `json:"source"`
}

// Responder is the slice of the inference chain the classifier needs.
type Responder interface {
	RespondStructured(ctx context.Context, prompt, systemContext string, dst any) bool
}

// aiAnswer mirrors the JSON object the model is asked to produce.
type aiAnswer struct {
	MessageType       string   `json:"message_type"`
	ClientName        *string  `json:"client_name"`
	ProposedDate      *string  `json:"proposed_date"`
	ProposedTime      *string  `json:"proposed_time"`
	Confidence        *float64 `json:"confidence"`
	SuggestedResponse string   `json:"suggested_response"`
}

// Classifier never fails: when inference is unavailable or answers garbage
// it falls back to keyword matching.
type Classifier struct {
	responder Responder
	ownerName string
	location  *time.Location
	now       func() time.Time
	logger    *logging.Logger
}

type Option func(*Classifier)

// WithClock overrides the time source used for greetings.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the business timezone used for greetings.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewClassifier builds a classifier. responder may be nil.
func NewClassifier(responder Responder, ownerName string, logger *logging.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Classifier{
		responder: responder,
		ownerName: ownerName,
		location:  time.UTC,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify reads one message. known is the sender's stored record, if any.
func (c *Classifier) Classify(ctx context.Context, message string, known *clients.Client) Analysis {
	if HasAdvertisementMarker(message) {
		return Analysis{
			Intent:     CategoryAdvertisement,
			Confidence: keywordConfidence,
			Source:     SourceKeywords,
		}
	}

	analysis, ok := c.classifyWithAI(ctx, message, known)
	if !ok {
		analysis = c.classifyWithKeywords(message, known)
	}
	if analysis.RequiresResponse && strings.TrimSpace(analysis.SuggestedReply) == "" {
		analysis.SuggestedReply = FormalGreeting(c.now().In(c.location), c.ownerName)
	}
	c.logger.Debug("message classified",
		"intent", string(analysis.Intent),
		"source", string(analysis.Source),
		"confidence", analysis.Confidence,
	)
	return analysis
}

func (c *Classifier) classifyWithAI(ctx context.Context, message string, known *clients.Client) (Analysis, bool) {
	if c.responder == nil {
		return Analysis{}, false
	}
	var answer aiAnswer
	if !c.responder.RespondStructured(ctx, classificationPrompt(message), c.systemContext(known), &answer) {
		return Analysis{}, false
	}
	category, ok := parseCategory(answer.MessageType)
	if !ok {
		c.logger.Info("inference returned unknown category, using keywords", "category", answer.MessageType)
		return Analysis{}, false
	}

	analysis := Analysis{
		Intent:           category,
		ClientName:       deref(answer.ClientName),
		ProposedDate:     deref(answer.ProposedDate),
		ProposedTime:     deref(answer.ProposedTime),
		RequiresResponse: category != CategoryAdvertisement,
		SuggestedReply:   strings.TrimSpace(answer.SuggestedResponse),
		Source:           SourceAI,
	}
	if answer.Confidence != nil {
		analysis.Confidence = clamp(*answer.Confidence)
	}
	if analysis.ClientName == "" && known != nil {
		analysis.ClientName = strings.TrimSpace(known.Name)
	}
	return analysis, true
}

func (c *Classifier) classifyWithKeywords(message string, known *clients.Client) Analysis {
	category := keywordCategory(message)
	analysis := Analysis{
		Intent:           category,
		Confidence:       keywordConfidence,
		RequiresResponse: category != CategoryAdvertisement,
		Source:           SourceKeywords,
	}
	if known != nil {
		analysis.ClientName = strings.TrimSpace(known.Name)
	}
	return analysis
}

func (c *Classifier) systemContext(known *clients.Client) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, el asistente personal de %s. Clasificas mensajes SMS entrantes.", AssistantName, c.ownerName)
	if known != nil && strings.TrimSpace(known.Name) != "" {
		fmt.Fprintf(&b, " Estás hablando con %s.", strings.TrimSpace(known.Name))
	}
	return b.String()
}

func classificationPrompt(message string) string {
	return `Analiza el siguiente mensaje SMS y responde SOLO con un objeto JSON con estos campos:
{"message_type": "appointment_request" | "appointment_change" | "general_query" | "advertisement" | "unknown",
 "client_name": string o null, "proposed_date": string o null, "proposed_time": string o null,
 "confidence": número entre 0 y 1, "requires_response": boolean, "suggested_response": string}

Mensaje: ` + message
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
