package relay

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"hkms/internal/hub"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu       sync.Mutex
	payloads [][]byte
	got      chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{got: make(chan struct{}, 16)}
}

func (s *captureSink) Deliver(payload []byte) int {
	s.mu.Lock()
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()
	s.got <- struct{}{}
	return 1
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func exerciseRelay(t *testing.T, r Relay, sink *captureSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	waitFor(t, r.Ready())

	err := r.Publish(ctx, hub.Event{Type: hub.EventTimerUpdate, Data: map[string]string{"action": hub.ActionStart}})
	require.NoError(t, err)
	waitFor(t, sink.got)

	sink.mu.Lock()
	env, err := hub.Decode(sink.payloads[0])
	sink.mu.Unlock()
	require.NoError(t, err)
	require.Equal(t, hub.EventTimerUpdate, env.Type)

	cancel()
	require.NoError(t, <-done)
}

func TestRedisRelayRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := newCaptureSink()
	r := NewRedis(RedisOptions{Addr: mr.Addr(), Channel: "hkms.events"}, sink, nil)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Ping(context.Background()))
	exerciseRelay(t, r, sink)
}

func TestRedisRelayDeliversToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	h := hub.New(4, nil)
	client := h.Register()
	r := NewRedis(RedisOptions{Addr: mr.Addr(), Channel: "hkms.events"}, h, nil)
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	waitFor(t, r.Ready())

	require.NoError(t, r.Publish(ctx, hub.Event{Type: hub.EventRoomStatusUpdate, Data: map[string]string{"status": "clean"}}))
	select {
	case payload := <-client.Messages():
		env, err := hub.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, hub.EventRoomStatusUpdate, env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestNATSRelayRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	sink := newCaptureSink()
	r, err := NewNATS(url, "hkms.events.test", sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	exerciseRelay(t, r, sink)
}
