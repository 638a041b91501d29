package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/repository"
)

// Notifier tells a patient about a new invitation. It reports whether a
// message was handed to the transport.
type Notifier interface {
	NotifyInvitation(ctx context.Context, inv *model.InvitationCode) (bool, error)
}

// Sender is the fallback identity used when admin settings carry none.
type Sender struct {
	Email        string
	Name         string
	SupportEmail string
}

type InvitationNotifier struct {
	dispatcher Dispatcher
	renderer   *Renderer
	settings   repository.SettingsRepository
	sender     Sender
}

func NewInvitationNotifier(
	dispatcher Dispatcher,
	renderer *Renderer,
	settings repository.SettingsRepository,
	sender Sender,
) *InvitationNotifier {
	return &InvitationNotifier{
		dispatcher: dispatcher,
		renderer:   renderer,
		settings:   settings,
		sender:     sender,
	}
}

func (n *InvitationNotifier) NotifyInvitation(ctx context.Context, inv *model.InvitationCode) (bool, error) {
	from, enabled := n.resolveSender(ctx)
	if !enabled {
		log.Info().Str("invitationId", inv.ID).Msg("invitation email disabled by admin settings")
		return false, nil
	}

	subject, html, text, err := n.renderer.RenderInvitation(InvitationEmail{
		FirstName:    inv.PatientFirstName,
		Code:         inv.Code,
		SupportEmail: n.sender.SupportEmail,
		ServiceName:  "Therapii",
	})
	if err != nil {
		return false, fmt.Errorf("render invitation email: %w", err)
	}

	err = n.dispatcher.Send(ctx, Message{
		From:     from.Email,
		FromName: from.Name,
		To:       inv.PatientEmail,
		Subject:  subject,
		HTML:     html,
		Text:     text,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// resolveSender prefers the admin email_config over the environment. A failed
// lookup falls back to the environment identity.
func (n *InvitationNotifier) resolveSender(ctx context.Context) (Sender, bool) {
	from := n.sender
	if n.settings == nil {
		return from, true
	}

	var cfg model.EmailConfig
	found, err := repository.DecodeSetting(ctx, n.settings, model.SettingEmailConfig, &cfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read email_config, using environment sender")
		return from, true
	}
	if !found {
		return from, true
	}

	if cfg.FromEmail != "" {
		from.Email = cfg.FromEmail
	}
	if cfg.FromName != "" {
		from.Name = cfg.FromName
	}
	return from, cfg.IsEnabled()
}
