package model

import (
	"time"

	"github.com/google/uuid"
)

// OneTimeCodeModel mirrors the 'one_time_codes' table. Codes are keyed by
// email so verification works before an account's first login.
type OneTimeCodeModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Email     string    `gorm:"type:varchar(255);not null;index:idx_codes_email_purpose"`
	Code      string    `gorm:"type:varchar(16);not null"`
	Purpose   string    `gorm:"type:varchar(30);not null;index:idx_codes_email_purpose"`
	Used      bool      `gorm:"not null;default:false"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (OneTimeCodeModel) TableName() string {
	return "one_time_codes"
}

// RefreshTokenModel mirrors the 'refresh_tokens' table. UUID columns align with PostgreSQL schema.
type RefreshTokenModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index"`
	TokenHash string    `gorm:"type:varchar(255);unique"`
	Status    string    `gorm:"type:varchar(20);not null;default:'pending'"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}
