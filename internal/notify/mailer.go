package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer sends the unlock confirmation email. Implementations must be safe
// for concurrent use.
type Mailer interface {
	SendUnlockEmail(ctx context.Context, to, roomTitle string) error
}

// LogMailer records the email instead of delivering it. Used until an SMTP
// or provider-backed mailer is wired in deployment.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendUnlockEmail(_ context.Context, to, roomTitle string) error {
	m.logger.Info().Str("to", to).Str("room", roomTitle).Msg("unlock email (log only)")
	return nil
}
