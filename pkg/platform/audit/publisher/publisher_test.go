package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "tenantguard/pkg/platform/audit"
	"tenantguard/pkg/platform/audit/store/memory"
)

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) Append(_ context.Context, _ audit.Event) error {
	s.calls++
	return s.err
}

func TestPublisher_EmitStoresEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	err := pub.Emit(context.Background(), audit.Event{
		Action:   string(audit.EventTenantAssigned),
		TenantID: "t-1",
	})
	require.NoError(t, err)

	events, err := pub.ListByTenant(context.Background(), "t-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventTenantAssigned), events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_KeepsProvidedTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	ts := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "x", Timestamp: ts}))

	events, err := pub.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ts, events[0].Timestamp)
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &failingSink{err: errors.New("kafka unavailable")}
	pub := NewPublisher(store, WithSink(sink))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "x"}))
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, store.All(), 1)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))

	for range 5 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "x"}))
	}
	pub.Close()

	assert.Len(t, store.All(), 5)
}
