package model

import (
	"time"

	"github.com/google/uuid"
)

// PasswordHistoryModel mirrors the 'password_history' table, the
// append-only ledger of prior password hashes per user.
type PasswordHistoryModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"index"`
}

// TableName explicitly sets the table name for GORM.
func (PasswordHistoryModel) TableName() string {
	return "password_history"
}
