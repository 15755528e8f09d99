// Package entity contains the core business objects of the project.
package entity

// AccountStatus tracks the lifecycle of an account. Accounts are never
// hard-deleted by the authentication layer.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusInactive  AccountStatus = "inactive"
)

// IsValid checks if the AccountStatus is a valid value.
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusSuspended, AccountStatusInactive:
		return true
	default:
		return false
	}
}

// KYCStatus tracks where a KYC-gated account sits in identity review.
type KYCStatus string

const (
	KYCStatusNotSubmitted   KYCStatus = "not_submitted"
	KYCStatusPending        KYCStatus = "pending"
	KYCStatusUnderReview    KYCStatus = "under_review"
	KYCStatusApproved       KYCStatus = "approved"
	KYCStatusRejected       KYCStatus = "rejected"
	KYCStatusResubmission   KYCStatus = "resubmission_required"
)

// TwoFactorMethod selects how the step-up proof is delivered.
type TwoFactorMethod string

const (
	// TwoFactorEmail delivers a one-time code by email. This is the
	// default for every new account.
	TwoFactorEmail TwoFactorMethod = "email"
	// TwoFactorTOTP uses an authenticator app enrolled via QR code.
	TwoFactorTOTP TwoFactorMethod = "totp"
)

// IdentityProvider names a federated identity source.
type IdentityProvider string

const (
	// ProviderGoogle is currently the only supported federation source.
	ProviderGoogle IdentityProvider = "google"
)
