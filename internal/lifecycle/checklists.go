package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"hkms/internal/access"
	"hkms/internal/hub"
	"hkms/internal/models"
	"hkms/internal/store"

	"github.com/google/uuid"
)

type ChecklistUpdate struct {
	Action    string                     `json:"action"`
	Checklist models.ChecklistCompletion `json:"checklist"`
}

type ChecklistInput struct {
	SessionID *string         `json:"session_id"`
	Items     map[string]bool `json:"items"`
	Notes     string          `json:"notes"`
	Finalize  bool            `json:"finalize"`
	Signature string          `json:"supervisor_signature"`
}

// SaveChecklist records a checklist completion for a room. A finalized
// checklist needs a supervisory signer and every item ticked, and moves the
// room to clean together with the record.
func (e *Engine) SaveChecklist(ctx context.Context, actor access.Identity, roomID string, input ChecklistInput) (models.ChecklistCompletion, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.ChecklistCompletion{}, err
	}
	checklist := models.ChecklistCompletion{
		ChecklistID: uuid.NewString(),
		RoomID:      roomID,
		SessionID:   input.SessionID,
		StaffID:     actor.UserID,
		Items:       input.Items,
		Notes:       strings.TrimSpace(input.Notes),
		Finalized:   input.Finalize,
		CreatedAt:   e.now(),
	}
	if checklist.Items == nil {
		checklist.Items = map[string]bool{}
	}
	if input.Finalize {
		if err := access.Require(actor, access.Supervisory); err != nil {
			return models.ChecklistCompletion{}, err
		}
		signature := strings.TrimSpace(input.Signature)
		if signature == "" {
			return models.ChecklistCompletion{}, fmt.Errorf("%w: supervisor_signature is required to finalize", ErrInvalidInput)
		}
		if !checklist.Complete() {
			return models.ChecklistCompletion{}, fmt.Errorf("%w: all items must be complete to finalize", ErrInvalidInput)
		}
		signer := actor.UserID
		checklist.Signature = signature
		checklist.SignedBy = &signer
	}

	err := e.withinRoom(ctx, "save_checklist", roomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		if err := requireRoomAccess(actor, tx.Room()); err != nil {
			return err
		}
		if checklist.SessionID != nil {
			if _, err := tx.GetSession(ctx, *checklist.SessionID); err != nil {
				return err
			}
		}
		room := tx.Room()
		if checklist.Finalized {
			if room.Status == models.StatusOccupied {
				return fmt.Errorf("%w: room %s is occupied", ErrInvalidTransition, room.RoomNumber)
			}
			if _, open, err := tx.OpenSession(ctx); err != nil {
				return err
			} else if open {
				return fmt.Errorf("%w: complete the cleaning session before finalizing", ErrConflict)
			}
		}
		if err := tx.InsertChecklist(ctx, checklist); err != nil {
			return err
		}
		emit(hub.Event{Type: hub.EventChecklistUpdate, Data: ChecklistUpdate{Action: hub.ActionSave, Checklist: checklist}})

		if checklist.Finalized && room.Status != models.StatusClean {
			e.setStatus(&room, models.StatusClean)
			if err := tx.SaveRoom(ctx, room); err != nil {
				return err
			}
			emit(roomEvent(room))
		}
		return nil
	})
	if err != nil {
		return models.ChecklistCompletion{}, err
	}
	return checklist, nil
}
