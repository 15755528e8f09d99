package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"

	"gatekeeper/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30 * time.Second
	totpDigits      = 6
	// Accept one step either side of now for clock skew.
	totpSkewSteps = 1
)

// totpService implements RFC 6238 time-based one-time passwords.
type totpService struct {
	issuer string
}

// NewTOTPService creates a TOTP service that labels provisioning URIs
// with the given issuer.
func NewTOTPService(issuer string) service.TOTPService {
	if issuer == "" {
		issuer = "Gatekeeper"
	}

	return &totpService{issuer: issuer}
}

// GenerateSecret produces a new base32 shared secret.
func (s *totpService) GenerateSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate totp secret")
	}

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// ProvisioningURI builds the otpauth URI scanned during enrollment.
func (s *totpService) ProvisioningURI(secret, accountLabel string) string {
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", s.issuer)

	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(s.issuer), url.PathEscape(accountLabel), q.Encode())
}

// Verify checks a code against the secret at the given time, allowing
// adjacent time steps for clock skew.
func (s *totpService) Verify(secret, code string, at time.Time) bool {
	if len(code) != totpDigits {
		return false
	}

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return false
	}

	step := at.Unix() / int64(totpPeriod/time.Second)
	for offset := int64(-totpSkewSteps); offset <= totpSkewSteps; offset++ {
		expected := hotp(key, uint64(step+offset))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

// hotp computes the truncated HMAC-SHA1 counter code from RFC 4226.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000)
}
