package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceRecord is one check-in attempt, matched or not.
type AttendanceRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Matched    bool      `json:"matched" db:"matched"`
	Distance   *float64  `json:"distance,omitempty" db:"distance"`
	Confidence *float64  `json:"confidence,omitempty" db:"confidence"`
	Reason     string    `json:"reason,omitempty" db:"reason"` // no-face / multiple-faces message
	CheckedAt  time.Time `json:"checked_at" db:"checked_at"`
}

// AttendanceEvent is the message published to NATS for every check-in.
type AttendanceEvent struct {
	RecordID   uuid.UUID `json:"record_id"`
	UserID     uuid.UUID `json:"user_id"`
	UserName   string    `json:"user_name"`
	Matched    bool      `json:"matched"`
	Distance   *float64  `json:"distance,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
