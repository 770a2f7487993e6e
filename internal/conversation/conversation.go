// Package conversation drives the per-sender scheduling state machine.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/availability"
)

var (
	ErrConversationNotFound = errors.New("conversation: not found")
	// ErrVersionConflict is returned by CompareAndSwap when another writer got there first.
	ErrVersionConflict = errors.New("conversation: version conflict")
)

type State string

const (
	StateNew                 State = "new"
	StateAwaitingReply       State = "awaiting_reply"
	StateOfferingSlots       State = "offering_slots"
	StatePendingConfirmation State = "pending_confirmation"
	StateBooked              State = "booked"
	StatePostponed           State = "postponed"
	StateInactive            State = "inactive"
)

// Terminal reports whether the state closes the current cycle.
func (s State) Terminal() bool {
	switch s {
	case StateBooked, StatePostponed, StateInactive:
		return true
	}
	return false
}

// Context keys.
const (
	ContextPendingIntent = "pending_intent"
	ContextClientName    = "client_name"
	ContextProposedDate  = "proposed_date"
	ContextProposedTime  = "proposed_time"
	ContextLastMessage   = "last_message"
	ContextEventID       = "event_id"
	ContextReminderAt    = "reminder_at"
)

// Conversation is the per-phone state record.
type Conversation struct {
	Phone                string              `json:"phone"`
	State                State               `json:"state"`
	Active               bool                `json:"active"`
	LastMessageAt        time.Time           `json:"last_message_at"`
	AppointmentScheduled bool                `json:"appointment_scheduled"`
	Context              map[string]string   `json:"context,omitempty"`
	Candidates           []availability.Slot `json:"candidates,omitempty"`
	Version              int64               `json:"version"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Context != nil {
		out.Context = make(map[string]string, len(c.Context))
		for k, v := range c.Context {
			out.Context[k] = v
		}
	}
	if c.Candidates != nil {
		out.Candidates = append([]availability.Slot(nil), c.Candidates...)
	}
	return &out
}

// Expired reports whether a non-terminal conversation has gone quiet for
// longer than timeout. A zero timeout never expires.
func (c *Conversation) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || c.State.Terminal() || c.LastMessageAt.IsZero() {
		return false
	}
	return now.Sub(c.LastMessageAt) > timeout
}

// Store persists conversations keyed by phone.
//
// CompareAndSwap writes conv only when the stored version equals expected
// (0 means "must not exist yet") and bumps conv.Version on success.
type Store interface {
	Get(ctx context.Context, phone string) (*Conversation, error)
	Put(ctx context.Context, conv *Conversation) error
	CompareAndSwap(ctx context.Context, conv *Conversation, expected int64) error
	ListActive(ctx context.Context) ([]*Conversation, error)
}
