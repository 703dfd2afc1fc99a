package postgres

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// isUniqueConstraintViolation reports whether err is a duplicate-key error.
// GORM translates the PostgreSQL 23505 code when error translation is on;
// the message check covers drivers that surface the raw pq error.
func isUniqueConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
