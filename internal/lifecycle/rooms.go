package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"hkms/internal/access"
	"hkms/internal/hub"
	"hkms/internal/models"
	"hkms/internal/store"
)

// RoomStatusUpdate is the payload of room_status_update events.
type RoomStatusUpdate struct {
	RoomID string      `json:"room_id"`
	Status string      `json:"status"`
	Room   models.Room `json:"room"`
}

func roomEvent(room models.Room) hub.Event {
	return hub.Event{
		Type: hub.EventRoomStatusUpdate,
		Data: RoomStatusUpdate{RoomID: room.RoomID, Status: room.Status, Room: room},
	}
}

type NewRoom struct {
	RoomNumber string `json:"room_number"`
	Floor      int    `json:"floor"`
	Type       string `json:"type"`
	Priority   string `json:"priority"`
}

// CreateRoom provisions a room in status dirty.
func (e *Engine) CreateRoom(ctx context.Context, actor access.Identity, input NewRoom) (models.Room, error) {
	if err := access.Require(actor, access.ManagerOnly); err != nil {
		return models.Room{}, err
	}
	input.RoomNumber = strings.TrimSpace(input.RoomNumber)
	if input.RoomNumber == "" {
		return models.Room{}, fmt.Errorf("%w: room_number is required", ErrInvalidInput)
	}
	if input.Type == "" {
		input.Type = models.RoomTypeStandard
	}
	if !models.IsRoomType(input.Type) {
		return models.Room{}, fmt.Errorf("%w: unknown room type %q", ErrInvalidInput, input.Type)
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !models.IsPriority(input.Priority) {
		return models.Room{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, input.Priority)
	}

	now := e.now()
	room, err := e.store.CreateRoom(ctx, models.Room{
		RoomNumber: input.RoomNumber,
		Floor:      input.Floor,
		Type:       input.Type,
		Status:     models.StatusDirty,
		Priority:   input.Priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return models.Room{}, translateStoreError(err)
	}
	e.publish(ctx, roomEvent(room))
	return room, nil
}

// Transition sets a room's status directly. Only supervisory roles may call
// it; housekeepers move rooms through sessions and problem reports. Setting
// the current status again succeeds and still emits an event. While a
// session is open only cleaning and inspection are accepted.
func (e *Engine) Transition(ctx context.Context, actor access.Identity, roomID, target string) (models.Room, error) {
	if err := access.Require(actor, access.Supervisory); err != nil {
		return models.Room{}, err
	}
	if !models.IsRoomStatus(target) {
		return models.Room{}, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	var updated models.Room
	err := e.withinRoom(ctx, "transition", roomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		room := tx.Room()
		if !ValidRoomTransition(room.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, room.Status, target)
		}
		if !allowedWithOpenSession(target) {
			if _, open, err := tx.OpenSession(ctx); err != nil {
				return err
			} else if open {
				return fmt.Errorf("%w: room %s has an open cleaning session", ErrConflict, room.RoomNumber)
			}
		}
		if room.Status != target {
			e.setStatus(&room, target)
		}
		if err := tx.SaveRoom(ctx, room); err != nil {
			return err
		}
		updated = room
		emit(roomEvent(room))
		return nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return updated, nil
}

type Assignment struct {
	AssignedTo *string `json:"assigned_to"`
	Priority   *string `json:"priority"`
}

// Assign changes who a room is assigned to and, optionally, its priority. A
// nil or empty AssignedTo clears the assignment.
func (e *Engine) Assign(ctx context.Context, actor access.Identity, roomID string, input Assignment) (models.Room, error) {
	if err := access.Require(actor, access.Supervisory); err != nil {
		return models.Room{}, err
	}
	if input.Priority != nil && !models.IsPriority(*input.Priority) {
		return models.Room{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *input.Priority)
	}

	var updated models.Room
	err := e.withinRoom(ctx, "assign", roomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		room := tx.Room()
		room.AssignedTo = nil
		if input.AssignedTo != nil && strings.TrimSpace(*input.AssignedTo) != "" {
			staff := strings.TrimSpace(*input.AssignedTo)
			room.AssignedTo = &staff
		}
		if input.Priority != nil {
			room.Priority = *input.Priority
		}
		room.UpdatedAt = e.now()
		if err := tx.SaveRoom(ctx, room); err != nil {
			return err
		}
		updated = room
		emit(roomEvent(room))
		return nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return updated, nil
}

// setStatus moves room to status and stamps LastCleanedAt on entering clean.
func (e *Engine) setStatus(room *models.Room, status string) {
	now := e.now()
	room.Status = status
	room.UpdatedAt = now
	if status == models.StatusClean {
		room.LastCleanedAt = &now
	}
}
