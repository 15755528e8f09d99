package service

import "context"

// CodeMailParams carries everything needed to deliver a one-time code.
type CodeMailParams struct {
	SendTo    string
	Subject   string
	Code      string
	FirstName string
	ExpiresIn string
}

// Mailer defines the interface for transactional email delivery.
// Implementations must never log the code itself.
type Mailer interface {
	// SendOneTimeCode delivers a one-time code to the recipient.
	SendOneTimeCode(ctx context.Context, params CodeMailParams) error
}
