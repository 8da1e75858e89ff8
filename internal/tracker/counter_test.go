package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbeoliero/bazaar/pkg/timestamp"
)

func TestCounter_NoReceiptCountsEveryForeignMessage(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	store.AddConversation("c1", "u1", "u2")
	store.AddMessageAt("c1", "u2", clock.Now())
	store.AddMessageAt("c1", "u1", clock.Now())
	store.AddMessageAt("c1", "u2", "not a time")
	store.AddMessageAt("c1", "u2", nil)

	c := NewCounter(store, DefaultTolerance, clock.Now)
	assert.Equal(t, 3, c.Count(context.Background(), "c1", "u1"))
	assert.Equal(t, 1, c.Count(context.Background(), "c1", "u2"))
}

func TestCounter_ToleranceBoundary(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	readAt := clock.Now()
	store.SetReceipt("c1", "u1", timestamp.FromTime(readAt))

	store.AddMessageAt("c1", "u2", readAt.Add(-time.Minute))
	store.AddMessageAt("c1", "u2", readAt)
	store.AddMessageAt("c1", "u2", readAt.Add(3000*time.Millisecond))
	store.AddMessageAt("c1", "u2", readAt.Add(3001*time.Millisecond))
	store.AddMessageAt("c1", "u2", readAt.Add(10*time.Second).Format(time.RFC3339Nano))
	store.AddMessageAt("c1", "u1", readAt.Add(time.Hour))

	c := NewCounter(store, DefaultTolerance, clock.Now)
	assert.Equal(t, 2, c.Count(context.Background(), "c1", "u1"))
}

func TestCounter_UnparseableReceiptIsAbsent(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	store.SetReceipt("c1", "u1", "sometime last week")
	store.AddMessageAt("c1", "u2", clock.Now().Add(-time.Hour))
	store.AddMessageAt("c1", "u2", clock.Now().Add(-time.Minute))

	c := NewCounter(store, DefaultTolerance, clock.Now)
	assert.Equal(t, 2, c.Count(context.Background(), "c1", "u1"))
}

func TestCounter_UnparseableMessageTimeIsNow(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	store.SetReceipt("c1", "u1", clock.Now().Add(-time.Minute))
	store.AddMessageAt("c1", "u2", map[string]any{"weird": true})

	c := NewCounter(store, DefaultTolerance, clock.Now)
	assert.Equal(t, 1, c.Count(context.Background(), "c1", "u1"))

	store.SetReceipt("c1", "u1", clock.Now())
	assert.Equal(t, 0, c.Count(context.Background(), "c1", "u1"))
}

func TestCounter_Failures(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	store.SetReceipt("c1", "u1", clock.Now())
	store.AddMessageAt("c1", "u2", clock.Now().Add(-time.Hour))
	store.AddMessageAt("c1", "u2", clock.Now().Add(-time.Minute))

	c := NewCounter(store, DefaultTolerance, clock.Now)
	ctx := context.Background()
	assert.Equal(t, 0, c.Count(ctx, "c1", "u1"))

	// receipt access denied contributes nothing, even with a newer message
	store.set(func(s *memStore) { s.getReceiptErr = errDenied })
	store.AddMessageAt("c1", "u2", clock.Now().Add(time.Minute))
	assert.Equal(t, 0, c.Count(ctx, "c1", "u1"))

	store.set(func(s *memStore) { s.getReceiptErr = nil })
	assert.Equal(t, 1, c.Count(ctx, "c1", "u1"))

	// message access denied contributes nothing
	store.set(func(s *memStore) { s.listMessageErr = errDenied })
	assert.Equal(t, 0, c.Count(ctx, "c1", "u1"))
}

func TestCounter_MissingInput(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore(clock)
	store.AddMessageAt("c1", "u2", clock.Now())

	c := NewCounter(store, 0, nil)
	assert.Equal(t, 0, c.Count(context.Background(), "c1", ""))
	assert.Equal(t, 0, c.Count(context.Background(), "", "u1"))
	assert.Equal(t, 0, c.Count(context.Background(), "unknown", "u1"))
}
