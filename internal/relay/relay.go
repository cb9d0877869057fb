// Package relay fans encoded events out across replicas through a message
// bus. Each replica publishes to the bus and delivers everything it receives,
// its own events included, to its local hub.
package relay

import (
	"context"

	"hkms/internal/hub"
)

// Sink receives encoded envelopes from the bus.
type Sink interface {
	Deliver(payload []byte) int
}

type Relay interface {
	hub.Publisher
	// Run consumes the bus until ctx is done.
	Run(ctx context.Context) error
	// Ready is closed once the bus subscription is live.
	Ready() <-chan struct{}
	Close() error
}
