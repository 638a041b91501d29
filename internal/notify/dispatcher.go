// Package notify renders and delivers transactional email.
package notify

import (
	"context"
	"fmt"

	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/model"
)

// Message is a fully rendered email.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Dispatcher delivers a rendered message through one transport.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// NewDispatcher selects the transport named by cfg.EmailProvider.
func NewDispatcher(ctx context.Context, cfg *config.Config) (Dispatcher, error) {
	switch model.EmailProvider(cfg.EmailProvider) {
	case model.EmailProviderSMTP:
		return NewSMTPDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case model.EmailProviderSES:
		return NewSESDispatcher(ctx, cfg.AWSRegion)
	case model.EmailProviderNoop, "":
		return NoopDispatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}
