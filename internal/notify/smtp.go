package notify

import (
	"context"

	"github.com/go-mail/mail"
)

type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

type SMTPDispatcher struct {
	dialer mailSender
}

func NewSMTPDispatcher(host string, port int, username, password string) *SMTPDispatcher {
	return &SMTPDispatcher{dialer: mail.NewDialer(host, port, username, password)}
}

func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetAddressHeader("To", msg.To, "")
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	// DialAndSend takes no context; run it aside so ctx still bounds the caller.
	done := make(chan error, 1)
	go func() { done <- d.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
