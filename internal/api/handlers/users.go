package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/verify"
	"github.com/your-org/attendance/pkg/dto"
)

type UserRepository interface {
	CreateUser(ctx context.Context, name, email, role, mobile string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetProfilePicture(ctx context.Context, id uuid.UUID, key string) (bool, error)
}

type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

type UserHandler struct {
	users     UserRepository
	objects   ObjectStore
	maxUpload int64
	maxPixels int64
}

// NewUserHandler returns a handler; maxPixels <= 0 means verify.DefaultMaxPixels.
func NewUserHandler(users UserRepository, objects ObjectStore, maxUpload, maxPixels int64) *UserHandler {
	if maxPixels <= 0 {
		maxPixels = verify.DefaultMaxPixels
	}
	return &UserHandler{users: users, objects: objects, maxUpload: maxUpload, maxPixels: maxPixels}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Name, req.Email, req.Role, req.Mobile)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, userResponse(user))
}

func (h *UserHandler) Get(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// UploadProfilePicture stores the "image" upload as the user's reference
// portrait. The payload must decode as an image.
func (h *UserHandler) UploadProfilePicture(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	data, _, err := readFormFile(c, "image", h.maxUpload)
	if err != nil {
		formFileError(c, "image", err)
		return
	}
	if _, err := verify.Decode(verify.RoleReference, data, h.maxPixels); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	key := fmt.Sprintf("profile-pictures/%s/%s.%s", user.ID, uuid.New(), format)
	if err := h.objects.PutObject(ctx, key, data, "image/"+format); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	found, err := h.users.SetProfilePicture(ctx, user.ID, key)
	if err != nil || !found {
		_ = h.objects.DeleteObject(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ProfilePictureResponse{UserID: user.ID, Key: key})
}

func (h *UserHandler) loadUser(c *gin.Context) (*models.User, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}
	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, false
	}
	return user, true
}

func userResponse(u *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              u.Role,
		Mobile:            u.Mobile,
		HasProfilePicture: u.HasProfilePicture(),
		CreatedAt:         u.CreatedAt.Format(time.RFC3339),
	}
}
