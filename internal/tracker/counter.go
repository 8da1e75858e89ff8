package tracker

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/pkg/timestamp"
)

// Counter computes the server-truth unread count of one conversation.
// It never sees optimistic state.
type Counter struct {
	store     Store
	tolerance time.Duration
	now       func() time.Time
}

// NewCounter creates a counter. now is used for message timestamps that cannot be parsed.
func NewCounter(store Store, tolerance time.Duration, now func() time.Time) *Counter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Counter{store: store, tolerance: tolerance, now: now}
}

// Count returns the number of messages not sent by identity that are newer than
// its receipt by more than the tolerance. Without a usable receipt every such
// message counts. Any data access failure, the receipt read included, yields 0.
func (c *Counter) Count(ctx context.Context, conversationId, identity string) int {
	if conversationId == "" || identity == "" {
		return 0
	}

	var lastRead time.Time
	hasReceipt := false
	receipt, err := c.store.GetReceipt(ctx, conversationId, identity)
	if err != nil {
		log.CtxWarn(ctx, "get receipt failed: conversation_id=%s, user_id=%s, error=%v", conversationId, identity, err)
		return 0
	}
	if receipt != nil {
		lastRead, hasReceipt = timestamp.Normalize(receipt.LastReadAt)
	}

	messages, err := c.store.ListMessages(ctx, conversationId)
	if err != nil {
		log.CtxWarn(ctx, "list messages failed: conversation_id=%s, error=%v", conversationId, err)
		return 0
	}

	unread := 0
	for _, m := range messages {
		if m.SenderId == identity {
			continue
		}
		if !hasReceipt {
			unread++
			continue
		}
		sentAt, ok := timestamp.Normalize(m.SentAt)
		if !ok {
			sentAt = c.now()
		}
		if sentAt.Sub(lastRead) > c.tolerance {
			unread++
		}
	}
	return unread
}
