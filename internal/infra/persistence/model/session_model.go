package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel mirrors the 'sessions' table. One row per device login.
type SessionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	AccountID      uuid.UUID `gorm:"type:uuid;not null;index"`
	RefreshTokenID uuid.UUID `gorm:"type:uuid;not null"`
	DeviceInfo     string    `gorm:"type:varchar(512)"`
	IPAddress      string    `gorm:"type:varchar(45)"`
	IsActive       bool      `gorm:"not null;default:true;index"`
	LastActivityAt time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null"`
	LoginAt        time.Time `gorm:"not null"`
	LogoutAt       *time.Time
	LogoutReason   string `gorm:"type:varchar(30)"`
	CreatedAt      time.Time
}

// TableName explicitly sets the table name for GORM.
func (SessionModel) TableName() string {
	return "sessions"
}
