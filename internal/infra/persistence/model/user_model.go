// Package model contains the GORM persistence models mirroring the
// PostgreSQL schema. They are exported so the GORM Gen tool can consume
// them from cmd/gen.
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserModel mirrors the 'users' table. PostgreSQL generates UUIDs via
// uuid_generate_v7(). Lockout counters, MFA state and the single-use
// challenge digests all live on this row so one row lock serializes every
// mutation of per-account auth state.
type UserModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	Email        string    `gorm:"type:varchar(255);unique;not null"`
	Name         string    `gorm:"type:varchar(100)"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Role         string    `gorm:"type:varchar(50);not null;default:'user'"`

	FailedLoginAttempts int `gorm:"not null;default:0"`
	LockedUntil         *time.Time

	EmailVerified     bool   `gorm:"not null;default:false"`
	VerificationToken string `gorm:"type:varchar(64);index"`

	MfaEnabled         bool   `gorm:"not null;default:false"`
	MfaSecret          string `gorm:"type:varchar(255)"`
	MfaType            string `gorm:"type:varchar(20)"`
	RecoveryCodeHashes string `gorm:"type:text"` // Newline-joined digests.

	ResetTokenHash         string `gorm:"type:varchar(64);index"`
	ResetTokenExpiresAt    *time.Time
	RecoveryTokenHash      string `gorm:"type:varchar(64);index"`
	RecoveryTokenExpiresAt *time.Time

	TenantIDs string `gorm:"type:text"` // Newline-joined tenant IDs.

	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Sessions        []SessionModel         `gorm:"foreignKey:UserID"`
	RefreshTokens   []RefreshTokenModel    `gorm:"foreignKey:UserID"`
	PasswordHistory []PasswordHistoryModel `gorm:"foreignKey:UserID"`
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}
