// Package notify tells the owner about conversations that need attention.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

type Kind string

const (
	KindNewContact Kind = "new_contact"
	KindBooked     Kind = "booked"
	KindPostponed  Kind = "postponed"
)

// Notification describes one event in a client conversation.
type Notification struct {
	Kind       Kind
	Phone      string
	ClientName string
	Message    string
	// At is the appointment start for KindBooked and the reminder time for KindPostponed.
	At time.Time
}

// Notifier is implemented by every owner notification channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OwnerEmailNotifier renders notifications as email to the owner.
type OwnerEmailNotifier struct {
	sender     EmailSender
	ownerEmail string
	ownerName  string
	location   *time.Location
	logger     *logging.Logger
}

func NewOwnerEmailNotifier(sender EmailSender, ownerEmail, ownerName string, loc *time.Location, logger *logging.Logger) *OwnerEmailNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OwnerEmailNotifier{
		sender:     sender,
		ownerEmail: ownerEmail,
		ownerName:  ownerName,
		location:   loc,
		logger:     logger,
	}
}

func (o *OwnerEmailNotifier) Notify(ctx context.Context, n Notification) error {
	subject, body := o.render(n)
	if err := o.sender.Send(ctx, EmailMessage{
		To:      o.ownerEmail,
		ToName:  o.ownerName,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: %s: %w", n.Kind, err)
	}
	return nil
}

func (o *OwnerEmailNotifier) render(n Notification) (string, string) {
	who := strings.TrimSpace(n.ClientName)
	if who == "" {
		who = n.Phone
	}
	var subject, body string
	switch n.Kind {
	case KindNewContact:
		subject = "Nuevo contacto: " + n.Phone
		body = fmt.Sprintf("Se quiere comunicar contigo el número %s. ¿Deseas continuar la conversación?", n.Phone)
	case KindBooked:
		subject = "Cita agendada con " + who
		body = fmt.Sprintf("Se agendó una cita con %s (%s) para el %s.", who, n.Phone, n.At.In(o.location).Format("02/01/2006 15:04"))
	case KindPostponed:
		subject = "Conversación pospuesta: " + who
		body = fmt.Sprintf("%s (%s) pidió retomar la conversación a las %s.", who, n.Phone, n.At.In(o.location).Format("15:04"))
	default:
		subject = "Aviso de " + who
		body = fmt.Sprintf("Evento %s de %s.", n.Kind, n.Phone)
	}
	if msg := strings.TrimSpace(n.Message); msg != "" {
		body += "\n\nÚltimo mensaje: " + msg
	}
	return subject, body
}
