package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.Equal(t, StateOpen, b.State())

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback)
}

func TestBreakerCooldownThrottlesProbes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("test", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(func() time.Time { return now }))

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "one probe per cooldown")

	b.Reset()
	assert.True(t, b.Allow())
	assert.Equal(t, "closed", b.State().String())
}
