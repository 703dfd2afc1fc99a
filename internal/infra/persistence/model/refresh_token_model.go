package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenModel mirrors the 'refresh_tokens' table. Only the SHA-256
// digest of the bearer value is stored. Family links the rotation chain of
// one session so a replayed ancestor can poison the whole chain.
type RefreshTokenModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TokenHash string    `gorm:"type:varchar(64);unique;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index"`
	Family    uuid.UUID `gorm:"type:uuid;not null;index"`

	IsRevoked        bool `gorm:"not null;default:false"`
	RevokedAt        *time.Time
	RevokedBy        uuid.UUID `gorm:"type:uuid"`
	RevocationReason string    `gorm:"type:varchar(100)"`

	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}
