package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a global account, not owned by any tenant. Emails are unique
// case-insensitively; creation is upsert-on-email.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email}
}
