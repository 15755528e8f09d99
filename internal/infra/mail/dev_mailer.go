package mail

import (
	"context"
	"log/slog"

	"gatekeeper/internal/domain/service"
)

// devMailer logs instead of sending. Used in development environments
// where no Postmark credentials exist. The code is included in the log
// line on purpose so developers can complete flows locally.
type devMailer struct {
	logger *slog.Logger
}

// NewDevMailer creates a log-only mailer.
func NewDevMailer(logger *slog.Logger) service.Mailer {
	return &devMailer{logger: logger}
}

func (m *devMailer) SendOneTimeCode(_ context.Context, params service.CodeMailParams) error {
	m.logger.Info("DEV MAIL one-time code",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("code", params.Code),
		slog.String("expiresIn", params.ExpiresIn),
	)

	return nil
}
