package mail

import (
	"log/slog"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Mail provider names accepted in configuration.
const (
	providerPostmark = "postmark"
	providerDev      = "dev"
)

// MailerParams holds dependencies for the Mailer, injected by Fx
type MailerParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

// NewMailer creates a Mailer based on configuration
func NewMailer(params MailerParams) (service.Mailer, error) {
	cfg := params.Config.Mail
	logger := params.Logger

	// Without mail configuration fall back to the log-only mailer so
	// development environments work out of the box.
	if cfg == nil || cfg.Provider == "" || cfg.Provider == providerDev {
		logger.Info("Mail not configured, using dev mailer")

		return NewDevMailer(logger), nil
	}

	switch cfg.Provider {
	case providerPostmark:
		logger.Info("Using Postmark mailer",
			slog.String("from", cfg.FromEmail),
		)

		return NewPostmarkMailer(cfg, logger)

	default:
		return nil, errors.Errorf("unknown mail provider: %s", cfg.Provider)
	}
}

// Module provides the mail FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(NewMailer),
)
