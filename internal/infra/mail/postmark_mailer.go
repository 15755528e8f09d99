// Package mail provides transactional email delivery for one-time codes.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"

	"github.com/mrz1836/postmark"
	"github.com/pkg/errors"
)

// postmarkMailer delivers one-time codes through Postmark's
// transactional API.
type postmarkMailer struct {
	client    *postmark.Client
	fromEmail string
	logger    *slog.Logger
}

// NewPostmarkMailer creates a Postmark-backed mailer.
// Both tokens are required so missing configuration fails at startup
// instead of at first send.
func NewPostmarkMailer(cfg *config.MailConfig, logger *slog.Logger) (service.Mailer, error) {
	if cfg.ServerToken == "" {
		return nil, errors.New("postmark server token is required")
	}
	if cfg.AccountToken == "" {
		return nil, errors.New("postmark account token is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("sender email is required")
	}

	return &postmarkMailer{
		client:    postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		fromEmail: cfg.FromEmail,
		logger:    logger,
	}, nil
}

// SendOneTimeCode delivers a one-time code email. The code itself is
// never logged.
func (m *postmarkMailer) SendOneTimeCode(ctx context.Context, params service.CodeMailParams) error {
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.fromEmail,
		To:       params.SendTo,
		Subject:  params.Subject,
		Tag:      "one-time-code",
		HTMLBody: renderCodeBody(params),
		TextBody: renderCodeText(params),
	})
	if err != nil {
		return errors.Wrap(err, "send one-time code email")
	}
	if resp.ErrorCode > 0 {
		return errors.Errorf("postmark rejected message: code %d: %s", resp.ErrorCode, resp.Message)
	}

	m.logger.Info("One-time code email sent",
		slog.String("to", params.SendTo),
		slog.String("messageID", resp.MessageID))

	return nil
}

func renderCodeBody(params service.CodeMailParams) string {
	greeting := "Hello"
	if params.FirstName != "" {
		greeting = "Hello " + params.FirstName
	}

	return fmt.Sprintf(
		`<p>%s,</p><p>Your verification code is:</p><h2 style="letter-spacing:4px">%s</h2><p>This code expires in %s. If you did not request it, you can ignore this email.</p>`,
		greeting, params.Code, params.ExpiresIn)
}

func renderCodeText(params service.CodeMailParams) string {
	return fmt.Sprintf("Your verification code is %s. It expires in %s.", params.Code, params.ExpiresIn)
}
