// Package qrcode renders otpauth provisioning URIs as QR code images.
package qrcode

import (
	"fmt"
	"strings"

	"gatekeeper/internal/domain/service"

	"github.com/skip2/go-qrcode"
)

type qrcodeService struct {
	size                 int
	errorCorrectionLevel qrcode.RecoveryLevel
}

// NewQRCodeService creates a new QR code service instance
func NewQRCodeService(size int, errorCorrectionLevel string) service.QRCodeService {
	// Set error correction level
	var level qrcode.RecoveryLevel
	switch errorCorrectionLevel {
	case "L":
		level = qrcode.Low
	case "M":
		level = qrcode.Medium
	case "Q":
		level = qrcode.High
	case "H":
		level = qrcode.Highest
	default:
		level = qrcode.Medium
	}

	if size <= 0 {
		size = 256
	}

	return &qrcodeService{
		size:                 size,
		errorCorrectionLevel: level,
	}
}

// GenerateEnrollmentQR renders an otpauth provisioning URI as a PNG
// image scannable by authenticator apps.
func (s *qrcodeService) GenerateEnrollmentQR(otpauthURI string) ([]byte, error) {
	if !strings.HasPrefix(otpauthURI, "otpauth://") {
		return nil, fmt.Errorf("not an otpauth URI")
	}

	qrCode, err := qrcode.New(otpauthURI, s.errorCorrectionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	pngBytes, err := qrCode.PNG(s.size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PNG: %w", err)
	}

	return pngBytes, nil
}
