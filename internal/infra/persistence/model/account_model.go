// Package model holds the GORM models mirroring the PostgreSQL schema.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountModel mirrors the 'accounts' table. PostgreSQL generates UUIDs via uuid_generate_v7().
type AccountModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	Email              string    `gorm:"type:varchar(255);unique;not null"`
	FirstName          string    `gorm:"type:varchar(100)"`
	LastName           string    `gorm:"type:varchar(100)"`
	PasswordHash       string    `gorm:"type:varchar(255)"`
	Role               string    `gorm:"type:varchar(20);not null"`
	Status             string    `gorm:"type:varchar(20);not null;default:'pending'"`
	IsEmailVerified    bool      `gorm:"not null;default:false"`
	IsProfileComplete  bool      `gorm:"not null;default:false"`
	TwoFactorEnabled   bool      `gorm:"not null;default:true"`
	TwoFactorMethod    string    `gorm:"type:varchar(20);not null;default:'email'"`
	TOTPSecret         string    `gorm:"type:varchar(255)"`
	KYCStatus          string    `gorm:"type:varchar(30);not null;default:'not_submitted'"`
	KYCRejectionReason string    `gorm:"type:text"`
	FailedLoginCount   int       `gorm:"not null;default:0"`
	LockUntil          *time.Time
	LastLoginAt        *time.Time
	LastLoginIP        string `gorm:"type:varchar(45)"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	ExternalIdentities []ExternalIdentityModel `gorm:"foreignKey:AccountID"`
	RefreshTokens      []RefreshTokenModel     `gorm:"foreignKey:AccountID"`
	Sessions           []SessionModel          `gorm:"foreignKey:AccountID"`
}

// TableName explicitly sets the table name for GORM.
func (AccountModel) TableName() string {
	return "accounts"
}

// ExternalIdentityModel mirrors the 'external_identities' table.
type ExternalIdentityModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	AccountID      uuid.UUID `gorm:"type:uuid;not null"`
	Provider       string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_identity_provider_provider_user_id"`
	ProviderUserID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_identity_provider_provider_user_id"`
	CreatedAt      time.Time
}

// TableName explicitly sets the table name for GORM.
func (ExternalIdentityModel) TableName() string {
	return "external_identities"
}
