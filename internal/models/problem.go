package models

import "time"

type ProblemReport struct {
	ReportID    string    `json:"report_id"`
	RoomID      string    `json:"room_id"`
	ReportedBy  string    `json:"reported_by"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}
