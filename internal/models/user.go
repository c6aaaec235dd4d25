package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Role           string    `json:"role,omitempty" db:"role"`
	Mobile         string    `json:"mobile,omitempty" db:"mobile"`
	ProfilePicture *string   `json:"profile_picture,omitempty" db:"profile_picture"` // object store key
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// HasProfilePicture reports whether a reference portrait is on file.
func (u *User) HasProfilePicture() bool {
	return u.ProfilePicture != nil && *u.ProfilePicture != ""
}
