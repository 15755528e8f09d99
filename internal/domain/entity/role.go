// Package entity contains the core business objects of the project.
package entity

import "slices"

// Role represents the type of role an account can have on the platform.
type Role string

const (
	// RoleStudent indicates a learner account.
	RoleStudent Role = "student"
	// RoleTeacher indicates a tutoring account. Teachers must pass KYC
	// review before their account is activated.
	RoleTeacher Role = "teacher"
	// RoleAdmin indicates a platform operator account.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// RequiresKYC reports whether accounts with this role must clear
// identity review before activation.
func (r Role) RequiresKYC() bool {
	return slices.Contains(kycGatedRoles, r)
}

// kycGatedRoles lists every role subject to identity review.
var kycGatedRoles = []Role{RoleTeacher}
