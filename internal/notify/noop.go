package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/therapii/api-server-go/internal/util"
)

// NoopDispatcher logs and discards messages.
type NoopDispatcher struct{}

func (NoopDispatcher) Send(ctx context.Context, msg Message) error {
	log.Info().
		Str("to", util.MaskEmail(msg.To)).
		Str("subject", msg.Subject).
		Msg("skipping email because noop is configured")
	return nil
}
