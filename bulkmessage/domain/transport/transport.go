package transport

import (
	"context"
	"strings"
)

// MediaOptions travel with WhatsApp sends only.
type MediaOptions struct {
	URL      string
	Type     string
	ViewOnce bool
}

// SendResponse carries the provider's answer for one recipient.
type SendResponse struct {
	MessageID string
	Status    string
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) (SendResponse, error)
}

type WhatsAppSender interface {
	SendMessage(ctx context.Context, phone, text string, media MediaOptions) (SendResponse, error)
}

// Readiness is optionally implemented by senders that can tell, before a batch
// starts, whether they are able to send at all (credentials, paired device).
type Readiness interface {
	Ready(ctx context.Context) error
}

// NormalizePhone strips formatting so providers receive digits only.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
