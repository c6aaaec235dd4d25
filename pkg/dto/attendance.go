package dto

import "github.com/google/uuid"

type AttendanceRecordResponse struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Matched    bool      `json:"matched"`
	Distance   *float64  `json:"distance,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  string    `json:"checked_at"`
}

type AttendanceListResponse struct {
	Records []AttendanceRecordResponse `json:"records"`
	Total   int                        `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}
