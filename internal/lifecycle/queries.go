package lifecycle

import (
	"context"
	"fmt"

	"hkms/internal/access"
	"hkms/internal/models"
)

// ListRooms returns the rooms actor may see.
func (e *Engine) ListRooms(ctx context.Context, actor access.Identity) ([]models.Room, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return nil, err
	}
	rooms, err := e.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	return access.VisibleRooms(actor, rooms), nil
}

func (e *Engine) GetRoom(ctx context.Context, actor access.Identity, roomID string) (models.Room, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.Room{}, err
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !access.CanViewRoom(actor, room) {
		return models.Room{}, fmt.Errorf("%w: room %s is not visible to %s", access.ErrForbidden, roomID, actor.Role)
	}
	return room, nil
}

func (e *Engine) ListSessions(ctx context.Context, actor access.Identity, roomID string) ([]models.CleaningSession, error) {
	if _, err := e.GetRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return e.store.ListCleaningSessions(ctx, roomID)
}

// GetSession returns a session if actor may see the room it belongs to.
func (e *Engine) GetSession(ctx context.Context, actor access.Identity, sessionID string) (models.CleaningSession, error) {
	if err := access.Require(actor, access.AnyRole); err != nil {
		return models.CleaningSession{}, err
	}
	session, err := e.store.GetCleaningSession(ctx, sessionID)
	if err != nil {
		return models.CleaningSession{}, err
	}
	if _, err := e.GetRoom(ctx, actor, session.RoomID); err != nil {
		return models.CleaningSession{}, err
	}
	return session, nil
}

func (e *Engine) ListProblemReports(ctx context.Context, actor access.Identity, roomID string) ([]models.ProblemReport, error) {
	if _, err := e.GetRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return e.store.ListProblemReports(ctx, roomID)
}
