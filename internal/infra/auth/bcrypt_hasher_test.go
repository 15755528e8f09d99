package auth

import (
	"strings"
	"testing"

	"gatekeeper/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testHasherConfig() *config.Config {
	return &config.Config{
		Auth: &config.AuthConfig{
			BcryptCost: bcrypt.MinCost, // Lower cost for faster testing
		},
		PasswordStrength: &config.PasswordStrengthConfig{
			MinLength:        8,
			MaxLength:        64,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumbers:   true,
			RequireSpecial:   true,
		},
	}
}

func TestBcryptHasher_HashAndCheck(t *testing.T) {
	hasher := NewBcryptHasher(testHasherConfig())

	password := "StrongPass123!"
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	// Test correct password
	assert.True(t, hasher.Check(password, hash))

	// Test incorrect password
	assert.False(t, hasher.Check("WrongPassword123!", hash))

	// Test empty password
	assert.False(t, hasher.Check("", hash))

	// Test with invalid hash
	assert.False(t, hasher.Check(password, "invalid_hash"))
}

func TestBcryptHasher_UsesConfiguredCost(t *testing.T) {
	cfg := testHasherConfig()
	cfg.Auth.BcryptCost = 6

	hasher := NewBcryptHasher(cfg)

	hash, err := hasher.Hash("StrongPass123!")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 6, cost)
}

func TestBcryptHasher_ValidateStrength(t *testing.T) {
	hasher := NewBcryptHasher(testHasherConfig())

	validPasswords := []string{
		"StrongPass123!",
		"MySecure@Pass1",
		"Complex#Secret9",
		"Valid$Phrase2024",
	}

	for _, password := range validPasswords {
		err := hasher.ValidateStrength(password)
		assert.NoError(t, err, "Expected no error for valid password: %s", password)
	}

	testCases := []struct {
		password    string
		expectedErr string
	}{
		{"123", "too short"},
		{"PASSWORD123!", "lowercase letter"},
		{"password123!", "uppercase letter"},
		{"PasswordABC!", "number"},
		{"Password123", "special character"},
		{strings.Repeat("Aa1!", 20), "maximum length"},
	}

	for _, tc := range testCases {
		err := hasher.ValidateStrength(tc.password)
		require.Error(t, err, "Expected error for password: %s", tc.password)
		assert.Contains(t, errDetails(err), tc.expectedErr)
	}
}

func TestBcryptHasher_ValidateStrengthEdgeCases(t *testing.T) {
	hasher := NewBcryptHasher(testHasherConfig())

	// Empty password
	err := hasher.ValidateStrength("")
	assert.Error(t, err)

	// Unicode characters satisfy the letter classes
	err = hasher.ValidateStrength("Pässphräse123!")
	assert.NoError(t, err)

	// Only special characters fails the letter and number requirements
	err = hasher.ValidateStrength("!@#$%^&*()")
	assert.Error(t, err)
}

func TestBcryptHasher_NoPolicyConfigured(t *testing.T) {
	cfg := testHasherConfig()
	cfg.PasswordStrength = nil

	hasher := NewBcryptHasher(cfg)

	// Without a policy only the bcrypt input limit applies.
	assert.NoError(t, hasher.ValidateStrength("anything"))
	assert.Error(t, hasher.ValidateStrength(strings.Repeat("x", 80)))
}

func errDetails(err error) string {
	type detailer interface {
		Details() string
	}
	if d, ok := err.(detailer); ok {
		return d.Details()
	}

	return err.Error()
}
