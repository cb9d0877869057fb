package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	EventRoomStatusUpdate = "room_status_update"
	EventTimerUpdate      = "timer_update"
	EventChecklistUpdate  = "checklist_update"
	EventProblemReport    = "problem_report"
)

const (
	ActionStart  = "start"
	ActionUpdate = "update"
	ActionCreate = "create"
	ActionSave   = "save"
)

type Event struct {
	Type string
	Data interface{}
}

// Envelope is the JSON frame every subscriber receives.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Publisher accepts events produced by successful mutations. Implementations
// must not block on slow subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func Encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:        ulid.Make().String(),
		Type:      event.Type,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
}

func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
