package store

import (
	"context"
	"time"

	"hkms/internal/models"
)

// RoomStore is the durable room registry plus the records hanging off a room.
//
// Reads outside WithinRoom see committed state only. Every mutation of an
// existing room, its sessions, checklists or problem reports goes through
// WithinRoom so the room row and its dependents change together.
type RoomStore interface {
	CreateRoom(ctx context.Context, room models.Room) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	GetCleaningSession(ctx context.Context, sessionID string) (models.CleaningSession, error)
	ListCleaningSessions(ctx context.Context, roomID string) ([]models.CleaningSession, error)
	ListProblemReports(ctx context.Context, roomID string) ([]models.ProblemReport, error)

	// WithinRoom runs fn against a locked view of one room. Writes staged
	// through tx are committed only if fn returns nil; otherwise nothing is
	// persisted. Returns ErrRoomNotFound when the room does not exist.
	WithinRoom(ctx context.Context, roomID string, fn func(tx RoomTx) error) error
}

// RoomTx is the unit of work handed to WithinRoom callbacks.
type RoomTx interface {
	Room() models.Room
	SaveRoom(ctx context.Context, room models.Room) error
	OpenSession(ctx context.Context) (models.CleaningSession, bool, error)
	GetSession(ctx context.Context, sessionID string) (models.CleaningSession, error)
	InsertSession(ctx context.Context, session models.CleaningSession) error
	SaveSession(ctx context.Context, session models.CleaningSession) error
	InsertChecklist(ctx context.Context, checklist models.ChecklistCompletion) error
	InsertProblemReport(ctx context.Context, report models.ProblemReport) error
}

type Session struct {
	SessionID string
	UserID    string
	Name      string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type LoginResult struct {
	User    models.User
	Session models.AuthSession
}

type AuthStore interface {
	// GetSession resolves an unexpired session token to the user it belongs
	// to. Role is read from the user record at lookup time.
	GetSession(ctx context.Context, sessionID string) (Session, error)
	Login(ctx context.Context, email, password string, ttl time.Duration) (LoginResult, error)
}

type Store interface {
	RoomStore
	AuthStore
}

// UserSeeder provisions accounts outside the request path, for bootstrap
// and tests.
type UserSeeder interface {
	EnsureUser(ctx context.Context, user models.User, password string) (models.User, error)
}
