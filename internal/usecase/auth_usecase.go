// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// SignupInput defines the data required to register a new account.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      entity.Role
}

// VerifyEmailInput carries an email verification code.
type VerifyEmailInput struct {
	Email string
	Code  string
}

// AuthenticateInput defines the data required for primary authentication.
type AuthenticateInput struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
}

// StepUpInput carries a two-factor code completing a pending login.
type StepUpInput struct {
	Email      string
	Code       string
	DeviceInfo string
	IPAddress  string
}

// RefreshInput carries the refresh token presented for rotation.
type RefreshInput struct {
	RefreshToken string
}

// LogoutInput identifies the session and credential being ended.
type LogoutInput struct {
	RefreshToken string
	SessionID    uuid.UUID
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	AccountID   uuid.UUID
	OldPassword string
	NewPassword string
}

// ResetPasswordInput carries a code-proved password reset request.
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

// GoogleSignInInput carries a Google ID token plus client context.
type GoogleSignInInput struct {
	IDToken    string
	DeviceInfo string
	IPAddress  string
}

// --- Output DTOs ---

// SignupOutput returns the newly created account's sanitized information.
type SignupOutput struct {
	Account *entity.Account
}

// AuthenticateOutput is the result of primary authentication. When the
// account has two-factor enabled no tokens are issued yet; the caller must
// complete the step-up first.
type AuthenticateOutput struct {
	Requires2FA     bool
	TwoFactorMethod entity.TwoFactorMethod

	// Set only when Requires2FA is false.
	Login *LoginOutput
}

// LoginOutput returns the issued credentials after a completed login.
type LoginOutput struct {
	AccessToken  string
	RefreshToken string
	SessionID    uuid.UUID
	Account      *entity.Account
	Redirect     string
}

// RefreshOutput returns the rotated token pair.
type RefreshOutput struct {
	AccessToken  string
	RefreshToken string
	SessionID    uuid.UUID
}

// StatusOutput returns the client destination for the account's current
// state. KYCRejectionReason is populated only when the account is being
// routed to the rejection page, so the client can show the reviewer's note.
type StatusOutput struct {
	Redirect           string
	KYCRejectionReason string
}

// EnrollTOTPOutput returns the provisioning material for an authenticator app.
type EnrollTOTPOutput struct {
	Secret     string
	OtpauthURI string
	QRCodePNG  []byte
}

// AuthUsecase defines the interface for authentication business operations.
// This is the contract that the delivery layer (e.g., API handlers) will depend on.
type AuthUsecase interface {
	Signup(ctx context.Context, input SignupInput) (*SignupOutput, error)
	VerifyEmail(ctx context.Context, input VerifyEmailInput) error
	PrimaryAuthenticate(ctx context.Context, input AuthenticateInput) (*AuthenticateOutput, error)
	CompleteStepUp(ctx context.Context, input StepUpInput) (*LoginOutput, error)
	Refresh(ctx context.Context, input RefreshInput) (*RefreshOutput, error)
	Logout(ctx context.Context, input LogoutInput) error
	LogoutAllDevices(ctx context.Context, accountID uuid.UUID) error
	ChangePassword(ctx context.Context, input ChangePasswordInput) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input ResetPasswordInput) error
	GoogleSignIn(ctx context.Context, input GoogleSignInInput) (*AuthenticateOutput, error)
	EnrollTOTP(ctx context.Context, accountID uuid.UUID) (*EnrollTOTPOutput, error)
	ConfirmTOTP(ctx context.Context, accountID uuid.UUID, code string) error
	CheckStatus(ctx context.Context, accountID uuid.UUID) (*StatusOutput, error)
}
