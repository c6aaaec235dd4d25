package dto

import "github.com/google/uuid"

type CreateUserRequest struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Role   string `json:"role"`
	Mobile string `json:"mobile"`
}

type UserResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Role              string    `json:"role,omitempty"`
	Mobile            string    `json:"mobile,omitempty"`
	HasProfilePicture bool      `json:"has_profile_picture"`
	CreatedAt         string    `json:"created_at"`
}

type ProfilePictureResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Key    string    `json:"key"`
}
