// Package lifecycle is the single writer for rooms and cleaning sessions. It
// validates room status transitions, runs the session timer, keeps compound
// changes atomic per room and hands every accepted change to the publisher.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hkms/internal/access"
	"hkms/internal/hub"
	"hkms/internal/models"
	"hkms/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Engine struct {
	store     store.RoomStore
	publisher hub.Publisher
	locks     *roomLocks
	now       func() time.Time
	logger    *zap.Logger
	tracer    trace.Tracer
}

type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps and timer math.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(st store.RoomStore, publisher hub.Publisher, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:     st,
		publisher: publisher,
		locks:     newRoomLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		tracer:    otel.Tracer("hkms/lifecycle"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withinRoom serializes on roomID, runs fn inside a store unit of work and,
// once the unit of work committed, publishes whatever events fn collected.
// Publishing happens before the room lock is released so subscribers see
// events for one room in commit order.
func (e *Engine) withinRoom(ctx context.Context, op, roomID string, fn func(tx store.RoomTx, emit func(hub.Event)) error) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	unlock := e.locks.lock(roomID)
	defer unlock()

	var events []hub.Event
	emit := func(event hub.Event) {
		events = append(events, event)
	}
	err := e.store.WithinRoom(ctx, roomID, func(tx store.RoomTx) error {
		events = events[:0]
		return fn(tx, emit)
	})
	if err != nil {
		err = translateStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	for _, event := range events {
		e.publish(ctx, event)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, event hub.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}

// requireRoomAccess fails with access.ErrForbidden unless actor may act on room.
func requireRoomAccess(actor access.Identity, room models.Room) error {
	if !access.CanActOnRoom(actor, room) {
		return fmt.Errorf("%w: room %s is not assigned to the caller", access.ErrForbidden, room.RoomNumber)
	}
	return nil
}

func translateStoreError(err error) error {
	switch {
	case errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, store.ErrOpenSessionExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, store.ErrRoomNumberTaken):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
