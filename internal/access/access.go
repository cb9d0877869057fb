// Package access resolves callers to identities and decides which operations
// and rooms a role may touch.
package access

import (
	"context"
	"errors"
	"fmt"

	"hkms/internal/models"
	"hkms/internal/store"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

const (
	RoleManager     = "manager"
	RoleSupervisor  = "supervisor"
	RoleHousekeeper = "housekeeper"
)

// RoleSet is the set of roles an operation is annotated with.
type RoleSet []string

var (
	AnyRole     = RoleSet{RoleManager, RoleSupervisor, RoleHousekeeper}
	Supervisory = RoleSet{RoleManager, RoleSupervisor}
	ManagerOnly = RoleSet{RoleManager}
)

func (s RoleSet) Allows(role string) bool {
	for _, item := range s {
		if item == role {
			return true
		}
	}
	return false
}

func IsRole(role string) bool {
	return AnyRole.Allows(role)
}

type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Require fails with ErrForbidden unless id's role is in allowed.
func Require(id Identity, allowed RoleSet) error {
	if id.UserID == "" {
		return ErrUnauthorized
	}
	if !allowed.Allows(id.Role) {
		return fmt.Errorf("%w: role %q not permitted", ErrForbidden, id.Role)
	}
	return nil
}

// Resolver looks a session token up in the durable user store.
type Resolver interface {
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
}

type Gate struct {
	resolver Resolver
}

func NewGate(resolver Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// Resolve maps a session token to an identity. The role comes from the user
// record the session points at, never from anything the caller sent.
func (g *Gate) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	session, err := g.resolver.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrAuthSessionNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("resolve session: %w", err)
	}
	if !IsRole(session.Role) {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrForbidden, session.Role)
	}
	return Identity{
		UserID: session.UserID,
		Name:   session.Name,
		Email:  session.Email,
		Role:   session.Role,
	}, nil
}

// Authorize resolves token and checks the resulting role against allowed.
func (g *Gate) Authorize(ctx context.Context, token string, allowed RoleSet) (Identity, error) {
	id, err := g.Resolve(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if err := Require(id, allowed); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// CanViewRoom: managers see everything, supervisors see their rooms plus the
// approval queue, housekeepers see only rooms assigned to them.
func CanViewRoom(id Identity, room models.Room) bool {
	switch id.Role {
	case RoleManager:
		return true
	case RoleSupervisor:
		if room.AssignedToUser(id.UserID) {
			return true
		}
		return room.Status == models.StatusInspection || room.Status == models.StatusClean
	case RoleHousekeeper:
		return room.AssignedToUser(id.UserID)
	default:
		return false
	}
}

// CanActOnRoom decides who may start sessions, drive timers, file reports and
// save checklists on a room. Supervisory roles may act on any room;
// housekeepers only on rooms assigned to them.
func CanActOnRoom(id Identity, room models.Room) bool {
	switch id.Role {
	case RoleManager, RoleSupervisor:
		return true
	case RoleHousekeeper:
		return room.AssignedToUser(id.UserID)
	default:
		return false
	}
}

func VisibleRooms(id Identity, rooms []models.Room) []models.Room {
	visible := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		if CanViewRoom(id, room) {
			visible = append(visible, room)
		}
	}
	return visible
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	value := ctx.Value(identityContextKey{})
	if value == nil {
		return Identity{}, false
	}
	id, ok := value.(Identity)
	return id, ok
}
