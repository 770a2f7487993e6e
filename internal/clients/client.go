// Package clients stores the people who text the owner, keyed by phone number.
package clients

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrClientNotFound is returned when no client exists for a phone.
	ErrClientNotFound = errors.New("clients: client not found")
	// ErrClientExists is returned when creating a phone that is already stored.
	ErrClientExists = errors.New("clients: client already exists")
	// ErrPhoneRequired is returned when a client has no phone identifier.
	ErrPhoneRequired = errors.New("clients: phone is required")
)

// Client is one sender known to the assistant.
type Client struct {
	Phone              string    `json:"phone"`
	Name               string    `json:"name,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	LastContact        time.Time `json:"last_contact"`
	PendingAppointment bool      `json:"pending_appointment"`
	PendingMessage     string    `json:"pending_message,omitempty"`
}

// DisplayName returns the name when known, otherwise the phone.
func (c *Client) DisplayName() string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return c.Phone
}

// Repository persists clients. Phone is the immutable key.
type Repository interface {
	Get(ctx context.Context, phone string) (*Client, error)
	Create(ctx context.Context, client *Client) error
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, phone string) error
}

func validate(client *Client) error {
	if client == nil || strings.TrimSpace(client.Phone) == "" {
		return ErrPhoneRequired
	}
	return nil
}
