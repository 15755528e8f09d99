// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"
)

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
type jwtService struct {
	accessSecret  string        // Secret key for signing access tokens.
	refreshSecret string        // Secret key for signing refresh tokens.
	accessTTL     time.Duration // Time-to-live for access tokens.
	refreshTTL    time.Duration // Time-to-live for refresh tokens.
}

// NewJWTService is the constructor for jwtService.
// It takes configuration values to create a new token service instance.
func NewJWTService(cfg *config.Config) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}
	if cfg.SecretKey.Access == cfg.SecretKey.Refresh {
		return nil, errors.New("access and refresh secrets must differ")
	}

	return &jwtService{
		accessSecret:  cfg.SecretKey.Access,
		refreshSecret: cfg.SecretKey.Refresh,
		accessTTL:     cfg.AuthPolicy.AccessTokenTTL,
		refreshTTL:    cfg.AuthPolicy.RefreshTokenTTL,
	}, nil
}

// GenerateTokens creates a new access token and refresh token pair bound to
// an account and session.
func (s *jwtService) GenerateTokens(accountID, sessionID uuid.UUID, email, role string) (accessToken string, refreshToken string, err error) {
	accessToken, err = s.generateToken(accountID, sessionID, email, role, s.accessTTL, s.accessSecret, service.TokenFamilyAccess)
	if err != nil {
		return "", "", err
	}

	refreshToken, err = s.generateToken(accountID, sessionID, email, role, s.refreshTTL, s.refreshSecret, service.TokenFamilyRefresh)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// ValidateToken parses a token string, verifies the signature of the
// expected family and returns the typed claims.
func (s *jwtService) ValidateToken(tokenString, family string) (*service.Claims, error) {
	var secret string
	switch family {
	case service.TokenFamilyAccess:
		secret = s.accessSecret
	case service.TokenFamilyRefresh:
		secret = s.refreshSecret
	default:
		return nil, errors.New("unknown token family")
	}

	claims := new(service.Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	// Family is also embedded in the claims so a token signed with the
	// right secret but wrong family claim still fails.
	if claims.Family != family {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token string.
// Tokens are persisted only in this form.
func (s *jwtService) HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// GetAccessTokenDuration returns the configured duration for access tokens.
func (s *jwtService) GetAccessTokenDuration() time.Duration {
	return s.accessTTL
}

// GetRefreshTokenDuration returns the configured duration for refresh tokens.
func (s *jwtService) GetRefreshTokenDuration() time.Duration {
	return s.refreshTTL
}

// generateToken is a private helper to create a JWT with specific claims.
func (s *jwtService) generateToken(accountID, sessionID uuid.UUID, email, role string, ttl time.Duration, secret, family string) (string, error) {
	now := time.Now()
	claims := &service.Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Email:     email,
		Role:      role,
		Family:    family,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}
