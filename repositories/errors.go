package repositories

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrUsernameTaken is returned when the unique username index rejects an insert.
	ErrUsernameTaken = errors.New("username already taken")
)

// isUniqueViolation recognizes duplicate-key failures. gorm translates them for every
// bundled dialect when TranslateError is on; the message checks cover connections opened
// without it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "duplicate entry")
}
