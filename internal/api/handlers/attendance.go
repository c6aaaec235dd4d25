package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/verify"
	"github.com/your-org/attendance/pkg/dto"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type CheckInService interface {
	CheckIn(ctx context.Context, userID uuid.UUID, capture []byte) (*verify.Result, error)
}

type AttendanceLister interface {
	ListAttendance(ctx context.Context, userID uuid.UUID, from, to *time.Time, limit, offset int) ([]models.AttendanceRecord, int, error)
}

type AttendanceHandler struct {
	service   CheckInService
	records   AttendanceLister
	maxUpload int64
}

// NewAttendanceHandler returns a handler; a nil service answers 503.
func NewAttendanceHandler(service CheckInService, records AttendanceLister, maxUpload int64) *AttendanceHandler {
	return &AttendanceHandler{service: service, records: records, maxUpload: maxUpload}
}

// Validate checks the "image1" upload against the user's profile picture.
func (h *AttendanceHandler) Validate(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	capture, contentType, err := readFormFile(c, "image1", h.maxUpload)
	if err != nil {
		formFileError(c, "image1", err)
		return
	}
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files allowed"})
		return
	}

	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face verification unavailable"})
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), userID, capture)
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, attendance.ErrNoProfilePicture):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User has no profile picture"})
	case err != nil:
		writeVerifyError(c, err)
	default:
		c.JSON(http.StatusOK, result)
	}
}

// List returns a user's check-in history, newest first.
func (h *AttendanceHandler) List(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var from, to *time.Time
	for name, dst := range map[string]**time.Time{"from": &from, "to": &to} {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", want RFC3339"})
				return
			}
			*dst = &t
		}
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.records.ListAttendance(c.Request.Context(), userID, from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AttendanceRecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, dto.AttendanceRecordResponse{
			ID:         r.ID,
			UserID:     r.UserID,
			Matched:    r.Matched,
			Distance:   r.Distance,
			Confidence: r.Confidence,
			Reason:     r.Reason,
			CheckedAt:  r.CheckedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, dto.AttendanceListResponse{Records: resp, Total: total, Limit: limit, Offset: offset})
}
