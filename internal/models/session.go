package models

import "time"

type CleaningSession struct {
	SessionID     string     `json:"session_id"`
	RoomID        string     `json:"room_id"`
	StaffID       string     `json:"staff_id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	PausedMillis  int64      `json:"paused_ms"`
	PausedSeconds int64      `json:"paused_seconds"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	TotalSeconds  *int64     `json:"total_seconds,omitempty"`
}

const (
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
)

// Open reports whether the session still counts against the one-open-session-per-room rule.
func (s CleaningSession) Open() bool {
	return s.Status == SessionActive || s.Status == SessionPaused
}
