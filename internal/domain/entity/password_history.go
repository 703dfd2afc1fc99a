package entity

import (
	"time"

	"github.com/google/uuid"
)

// PasswordHistory is one append-only ledger entry recording a hash the
// user has previously used. New passwords are checked against the most
// recent N entries to block reuse; older entries may be pruned.
type PasswordHistory struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	PasswordHash string
	CreatedAt    time.Time
}
