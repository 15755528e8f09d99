package impl

import (
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/usecase"
)

// Redirect destinations returned by CheckStatus. The client routes the
// user to the first unmet requirement; ordering is what makes the
// routing deterministic when several requirements are unmet at once.
const (
	RedirectVerifyEmail     = "verify-email"
	RedirectCompleteProfile = "complete-profile"
	RedirectKYCSubmission   = "kyc-submission"
	RedirectKYCPending      = "kyc-pending"
	RedirectKYCRejected     = "kyc-rejected"
	RedirectKYCResubmission = "kyc-resubmission"
	RedirectPendingApproval = "pending-approval"
	RedirectDashboard       = "dashboard"
)

// statusPredicate pairs a requirement check with the redirect returned
// when the requirement is unmet.
type statusPredicate struct {
	unmet    func(*entity.Account) bool
	redirect func(*entity.Account) string
}

// statusLadder is evaluated in order; the first unmet predicate wins.
var statusLadder = []statusPredicate{
	{
		unmet:    func(a *entity.Account) bool { return !a.IsEmailVerified },
		redirect: func(*entity.Account) string { return RedirectVerifyEmail },
	},
	{
		unmet:    func(a *entity.Account) bool { return !a.IsProfileComplete },
		redirect: func(*entity.Account) string { return RedirectCompleteProfile },
	},
	{
		unmet: func(a *entity.Account) bool {
			return a.Role.RequiresKYC() && a.KYCStatus != entity.KYCStatusApproved
		},
		redirect: kycRedirect,
	},
	{
		unmet: func(a *entity.Account) bool {
			return a.Role != entity.RoleAdmin && a.Status != entity.AccountStatusActive
		},
		redirect: func(*entity.Account) string { return RedirectPendingApproval },
	},
}

func kycRedirect(a *entity.Account) string {
	switch a.KYCStatus {
	case entity.KYCStatusNotSubmitted:
		return RedirectKYCSubmission
	case entity.KYCStatusRejected:
		return RedirectKYCRejected
	case entity.KYCStatusResubmission:
		return RedirectKYCResubmission
	default:
		// pending and under_review both wait on the reviewer.
		return RedirectKYCPending
	}
}

// redirectFor walks the ladder and returns the destination for the
// account's current state.
func redirectFor(a *entity.Account) string {
	for _, p := range statusLadder {
		if p.unmet(a) {
			return p.redirect(a)
		}
	}

	return RedirectDashboard
}

// routeFor resolves the destination together with the detail the client
// needs to render it. The rejection reason rides along only when the
// account is being sent to the rejection page.
func routeFor(a *entity.Account) *usecase.StatusOutput {
	out := &usecase.StatusOutput{Redirect: redirectFor(a)}
	if out.Redirect == RedirectKYCRejected {
		out.KYCRejectionReason = a.KYCRejectionReason
	}

	return out
}
