package lifecycle

import (
	"context"
	"fmt"
	"time"

	"hkms/internal/access"
	"hkms/internal/hub"
	"hkms/internal/models"
	"hkms/internal/store"

	"github.com/google/uuid"
)

// TimerUpdate is the payload of timer_update events.
type TimerUpdate struct {
	Action         string                 `json:"action"`
	Session        models.CleaningSession `json:"session"`
	ElapsedSeconds int64                  `json:"elapsed_seconds"`
}

func (e *Engine) timerEvent(action string, session models.CleaningSession) hub.Event {
	return hub.Event{
		Type: hub.EventTimerUpdate,
		Data: TimerUpdate{
			Action:         action,
			Session:        session,
			ElapsedSeconds: ElapsedSeconds(session, e.now()),
		},
	}
}

// StartSession opens a cleaning session for actor and moves the room to
// cleaning in the same unit of work. Fails with ErrConflict when the room
// already has an active or paused session.
func (e *Engine) StartSession(ctx context.Context, actor access.Identity, roomID string) (models.CleaningSession, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.CleaningSession{}, err
	}

	var started models.CleaningSession
	err := e.withinRoom(ctx, "start_session", roomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		room := tx.Room()
		if err := requireRoomAccess(actor, room); err != nil {
			return err
		}
		if !canStartCleaning(room.Status) {
			return fmt.Errorf("%w: room %s is %s", ErrInvalidTransition, room.RoomNumber, room.Status)
		}
		if _, open, err := tx.OpenSession(ctx); err != nil {
			return err
		} else if open {
			return fmt.Errorf("%w: %w", ErrConflict, store.ErrOpenSessionExists)
		}

		session := models.CleaningSession{
			SessionID: uuid.NewString(),
			RoomID:    room.RoomID,
			StaffID:   actor.UserID,
			Status:    models.SessionActive,
			StartedAt: e.now(),
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}
		emit(e.timerEvent(hub.ActionStart, session))

		if room.Status != models.StatusCleaning {
			e.setStatus(&room, models.StatusCleaning)
			if err := tx.SaveRoom(ctx, room); err != nil {
				return err
			}
			emit(roomEvent(room))
		}
		started = session
		return nil
	})
	if err != nil {
		return models.CleaningSession{}, err
	}
	return started, nil
}

func (e *Engine) PauseSession(ctx context.Context, actor access.Identity, sessionID string) (models.CleaningSession, error) {
	return e.applySessionAction(ctx, actor, sessionID, "pause", pauseSession)
}

func (e *Engine) ResumeSession(ctx context.Context, actor access.Identity, sessionID string) (models.CleaningSession, error) {
	return e.applySessionAction(ctx, actor, sessionID, "resume", resumeSession)
}

// CompleteSession seals the session total. The room keeps its status; the
// checklist finalize or a supervisor moves it on.
func (e *Engine) CompleteSession(ctx context.Context, actor access.Identity, sessionID string) (models.CleaningSession, error) {
	return e.applySessionAction(ctx, actor, sessionID, "complete", completeSession)
}

func (e *Engine) applySessionAction(
	ctx context.Context,
	actor access.Identity,
	sessionID, action string,
	apply func(models.CleaningSession, time.Time) models.CleaningSession,
) (models.CleaningSession, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.CleaningSession{}, err
	}
	existing, err := e.store.GetCleaningSession(ctx, sessionID)
	if err != nil {
		return models.CleaningSession{}, err
	}

	var updated models.CleaningSession
	err = e.withinRoom(ctx, action+"_session", existing.RoomID, func(tx store.RoomTx, emit func(hub.Event)) error {
		if err := requireRoomAccess(actor, tx.Room()); err != nil {
			return err
		}
		current, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !ValidSessionAction(action, current.Status) {
			return fmt.Errorf("%w: cannot %s a %s session", ErrInvalidTransition, action, current.Status)
		}
		next := apply(current, e.now())
		if err := tx.SaveSession(ctx, next); err != nil {
			return err
		}
		updated = next
		emit(e.timerEvent(hub.ActionUpdate, next))
		return nil
	})
	if err != nil {
		return models.CleaningSession{}, err
	}
	return updated, nil
}

// Elapsed reports the active seconds of session at the engine's current time.
func (e *Engine) Elapsed(session models.CleaningSession) int64 {
	return ElapsedSeconds(session, e.now())
}
