package models

import "time"

// User is a registered account. Usernames are unique; the unique index is the
// authority for conflicts, not a lookup before insert.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:20;not null;uniqueIndex:uni_users_username" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}
