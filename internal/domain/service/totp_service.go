package service

import "time"

// TOTPService defines the interface for authenticator app enrollment and
// time-based code verification.
type TOTPService interface {
	// GenerateSecret produces a new base32 shared secret.
	GenerateSecret() (string, error)

	// ProvisioningURI builds the otpauth URI encoding the secret for a
	// given account label.
	ProvisioningURI(secret, accountLabel string) string

	// Verify checks a 6-digit code against the secret at the given time,
	// allowing adjacent time steps for clock skew.
	Verify(secret, code string, at time.Time) bool
}
