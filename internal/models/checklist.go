package models

import "time"

type ChecklistCompletion struct {
	ChecklistID string          `json:"checklist_id"`
	RoomID      string          `json:"room_id"`
	SessionID   *string         `json:"session_id,omitempty"`
	StaffID     string          `json:"staff_id"`
	Items       map[string]bool `json:"items"`
	Notes       string          `json:"notes,omitempty"`
	Finalized   bool            `json:"finalized"`
	Signature   string          `json:"supervisor_signature,omitempty"`
	SignedBy    *string         `json:"signed_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Complete reports whether the checklist has items and every one of them is checked.
func (c ChecklistCompletion) Complete() bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, done := range c.Items {
		if !done {
			return false
		}
	}
	return true
}
