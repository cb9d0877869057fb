package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverReachesEveryOpenClient(t *testing.T) {
	h := New(4, nil)
	clients := []*Client{h.Register(), h.Register(), h.Register()}

	assert.Equal(t, 3, h.Deliver([]byte(`{}`)))
	for _, client := range clients {
		assert.Len(t, client.Messages(), 1)
	}

	h.Unregister(clients[1])
	assert.Equal(t, StateClosed, clients[1].State())
	assert.Equal(t, 2, h.Deliver([]byte(`{}`)))
	assert.Equal(t, 2, h.Len())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := New(1, nil)
	client := h.Register()
	h.Unregister(client)
	h.Unregister(client)

	_, open := <-client.Messages()
	assert.False(t, open)
	assert.False(t, client.Overflowed())
	assert.Zero(t, h.Len())
}

func TestOverflowDisconnectsSlowClient(t *testing.T) {
	h := New(2, nil)
	slow := h.Register()
	fast := h.Register()

	for i := 0; i < 2; i++ {
		require.Equal(t, 2, h.Deliver([]byte(`{}`)))
		<-fast.Messages()
	}
	assert.Equal(t, 1, h.Deliver([]byte(`{}`)))
	assert.Equal(t, StateClosed, slow.State())
	assert.True(t, slow.Overflowed())
	assert.False(t, fast.Overflowed())
	assert.Equal(t, 1, h.Len())

	drained := 0
	for range slow.Messages() {
		drained++
	}
	assert.Equal(t, 2, drained)
}

func TestPublishEncodesEnvelope(t *testing.T) {
	h := New(1, nil)
	client := h.Register()

	err := h.Publish(context.Background(), Event{Type: EventProblemReport, Data: map[string]string{"action": ActionCreate}})
	require.NoError(t, err)

	env, err := Decode(<-client.Messages())
	require.NoError(t, err)
	assert.Equal(t, EventProblemReport, env.Type)
	assert.Len(t, env.ID, 26)
	assert.JSONEq(t, `{"action":"create"}`, string(env.Data))
	assert.False(t, env.CreatedAt.IsZero())
}

func TestCloseAll(t *testing.T) {
	h := New(1, nil)
	a, b := h.Register(), h.Register()
	h.CloseAll()
	assert.Zero(t, h.Len())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, a.Overflowed())
}
