package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel mirrors the 'sessions' table. One row per login on one
// device; revocation flips IsActive and records the reason.
type SessionModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceInfo string    `gorm:"type:varchar(255)"`
	IPAddress  string    `gorm:"type:varchar(45)"`
	UserAgent  string    `gorm:"type:varchar(512)"`

	IsActive       bool   `gorm:"not null;default:true;index"`
	RevokedReason  string `gorm:"type:varchar(100)"`
	LastActivityAt time.Time
	ExpiresAt      time.Time `gorm:"not null;index"`
	CreatedAt      time.Time
}

// TableName explicitly sets the table name for GORM.
func (SessionModel) TableName() string {
	return "sessions"
}
