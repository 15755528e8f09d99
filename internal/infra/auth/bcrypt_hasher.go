// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"gatekeeper/config"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"
)

// bcrypt rejects inputs longer than 72 bytes.
const bcryptMaxPasswordBytes = 72

// bcryptHasher is a concrete implementation of the PasswordHasher interface using bcrypt.
type bcryptHasher struct {
	cost     int
	strength *config.PasswordStrengthConfig
}

// NewBcryptHasher is the constructor for bcryptHasher.
// It returns the implementation as a service.PasswordHasher interface.
func NewBcryptHasher(cfg *config.Config) service.PasswordHasher {
	cost := bcrypt.DefaultCost
	if cfg.Auth != nil && cfg.Auth.BcryptCost > 0 {
		cost = cfg.Auth.BcryptCost
	}

	return &bcryptHasher{
		cost:     cost,
		strength: cfg.PasswordStrength,
	}
}

// Hash generates a salted hash from a plaintext password using bcrypt.
// bcrypt automatically handles salt generation.
func (h *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)

	return string(bytes), err
}

// Check compares a plaintext password with a bcrypt hash.
func (h *bcryptHasher) Check(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	// err is nil if the password and hash match.
	return err == nil
}

// ValidateStrength checks the password against the configured policy.
func (h *bcryptHasher) ValidateStrength(password string) error {
	if len(password) > bcryptMaxPasswordBytes {
		return domainerrors.ErrPasswordStrength.WithDetails("password exceeds maximum length")
	}

	policy := h.strength
	if policy == nil {
		return nil
	}

	if policy.MinLength > 0 && len(password) < policy.MinLength {
		return domainerrors.ErrPasswordStrength.WithDetails("password is too short")
	}
	if policy.MaxLength > 0 && len(password) > policy.MaxLength {
		return domainerrors.ErrPasswordStrength.WithDetails("password exceeds maximum length")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var missing []string
	if policy.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if policy.RequireNumbers && !hasNumber {
		missing = append(missing, "number")
	}
	if policy.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return domainerrors.ErrPasswordStrength.WithDetails(
			"password must contain at least one " + strings.Join(missing, ", "))
	}

	return nil
}
