package service

// QRCodeService defines the interface for QR code generation services
type QRCodeService interface {
	// GenerateEnrollmentQR renders an otpauth provisioning URI as a QR
	// code image for authenticator app enrollment.
	GenerateEnrollmentQR(otpauthURI string) ([]byte, error)
}
