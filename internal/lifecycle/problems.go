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

type ProblemReportEvent struct {
	Action string               `json:"action"`
	Report models.ProblemReport `json:"report"`
}

type ProblemInput struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// ReportProblem files a report against a room and flags the room for
// inspection unless a guest is in it.
func (e *Engine) ReportProblem(ctx context.Context, actor access.Identity, roomID string, input ProblemInput) (models.ProblemReport, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.ProblemReport{}, err
	}
	input.Type = strings.TrimSpace(input.Type)
	input.Description = strings.TrimSpace(input.Description)
	if input.Type == "" || input.Description == "" {
		return models.ProblemReport{}, fmt.Errorf("%w: type and description are required", ErrInvalidInput)
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !models.IsPriority(input.Priority) {
		return models.ProblemReport{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, input.Priority)
	}

	report := models.ProblemReport{
		ReportID:    uuid.NewString(),
		RoomID:      roomID,
		ReportedBy:  actor.UserID,
		Type:        input.Type,
		Description: input.Description,
		Priority:    input.Priority,
		CreatedAt:   e.now(),
	}
	err := e.withinRoom(ctx, "report_problem", roomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		if err := requireRoomAccess(actor, tx.Room()); err != nil {
			return err
		}
		if err := tx.InsertProblemReport(ctx, report); err != nil {
			return err
		}
		emit(hub.Event{Type: hub.EventProblemReport, Data: ProblemReportEvent{Action: hub.ActionCreate, Report: report}})

		room := tx.Room()
		if canFlagForInspection(room.Status) && room.Status != models.StatusInspection {
			e.setStatus(&room, models.StatusInspection)
			if err := tx.SaveRoom(ctx, room); err != nil {
				return err
			}
			emit(roomEvent(room))
		}
		return nil
	})
	if err != nil {
		return models.ProblemReport{}, err
	}
	return report, nil
}
