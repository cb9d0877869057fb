package models

import "time"

type Room struct {
	RoomID        string     `json:"room_id"`
	RoomNumber    string     `json:"room_number"`
	Floor         int        `json:"floor"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	AssignedTo    *string    `json:"assigned_to,omitempty"`
	Priority      string     `json:"priority"`
	LastCleanedAt *time.Time `json:"last_cleaned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AssignedToUser reports whether the room is assigned to userID.
func (r Room) AssignedToUser(userID string) bool {
	return r.AssignedTo != nil && *r.AssignedTo == userID
}

const (
	StatusDirty      = "dirty"
	StatusCleaning   = "cleaning"
	StatusInspection = "inspection"
	StatusClean      = "clean"
	StatusOccupied   = "occupied"
	StatusApproved   = "approved"
)

// RoomStatuses is the fixed, ordered set of room statuses.
var RoomStatuses = []string{
	StatusDirty,
	StatusCleaning,
	StatusInspection,
	StatusClean,
	StatusOccupied,
	StatusApproved,
}

const (
	RoomTypeStandard = "standard"
	RoomTypeDeluxe   = "deluxe"
	RoomTypeSuite    = "suite"
)

var RoomTypes = []string{RoomTypeStandard, RoomTypeDeluxe, RoomTypeSuite}

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func IsRoomStatus(value string) bool { return contains(RoomStatuses, value) }

func IsRoomType(value string) bool { return contains(RoomTypes, value) }

func IsPriority(value string) bool { return contains(Priorities, value) }

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
