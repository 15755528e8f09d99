// Package google verifies Google ID tokens for federated sign-in.
package google

import (
	"context"
	"log/slog"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/service"

	"github.com/pkg/errors"
	"google.golang.org/api/idtoken"
)

// AuthServiceImpl implements service.OAuthAuthService for Google.
type AuthServiceImpl struct {
	clientID string
	logger   *slog.Logger

	// validate is swappable in tests.
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewAuthService creates a new Google AuthService
func NewAuthService(cfg *config.Config, logger *slog.Logger) service.OAuthAuthService {
	return &AuthServiceImpl{
		clientID: cfg.GoogleOAuth.ClientID,
		logger:   logger,
		validate: idtoken.Validate,
	}
}

// VerifyIDToken verifies a Google ID token's signature and audience and
// returns the identity it asserts.
func (s *AuthServiceImpl) VerifyIDToken(ctx context.Context, token string) (*service.OAuthUser, error) {
	payload, err := s.validate(ctx, token, s.clientID)
	if err != nil {
		s.logger.Warn("Google ID token validation failed", slog.Any("error", err))

		return nil, errors.Wrap(err, "invalid ID token")
	}

	sub, _ := payload.Claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("ID token missing subject")
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)

	if !emailVerified {
		return nil, errors.New("email not verified by provider")
	}

	s.logger.Info("Google ID token verified",
		slog.String("subject", sub),
		slog.String("email", email))

	return &service.OAuthUser{
		ID:            sub,
		Email:         email,
		Name:          name,
		Provider:      entity.ProviderGoogle,
		AvatarURL:     picture,
		EmailVerified: emailVerified,
	}, nil
}

// GetProvider returns the OAuth provider type
func (s *AuthServiceImpl) GetProvider() entity.IdentityProvider {
	return entity.ProviderGoogle
}
