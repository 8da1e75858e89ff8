package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/tracker"
)

// TrackerStore serves the unread tracker from MySQL. Membership changes are
// learned from the change feed since MySQL has no query subscriptions.
type TrackerStore struct {
	convs    *ConversationRepo
	messages *MessageRepo
	receipts *ReceiptRepo
	feed     feed.Feed
	timeout  time.Duration
}

var _ tracker.Store = (*TrackerStore)(nil)

// NewTrackerStore creates a TrackerStore. timeout bounds each relisting after a feed signal.
func NewTrackerStore(repos *Repositories, f feed.Feed, timeout time.Duration) *TrackerStore {
	return &TrackerStore{
		convs:    repos.Conversation,
		messages: repos.Message,
		receipts: repos.Receipt,
		feed:     f,
		timeout:  timeout,
	}
}

// WatchConversations relists the user's conversations on every feed signal.
// The current membership is delivered once before returning.
func (s *TrackerStore) WatchConversations(ctx context.Context, identity string, onChange func(conversationIds []string)) (func(), error) {
	return feed.WatchList(ctx, s.feed, identity, s.timeout, func(ctx context.Context) ([]string, error) {
		return s.convs.ListIdsForUser(ctx, identity)
	}, onChange)
}

func (s *TrackerStore) ListConversations(ctx context.Context, identity string) ([]string, error) {
	return s.convs.ListIdsForUser(ctx, identity)
}

func (s *TrackerStore) GetReceipt(ctx context.Context, conversationId, identity string) (*tracker.Receipt, error) {
	receipt, err := s.receipts.Get(ctx, conversationId, identity)
	if err != nil || receipt == nil {
		return nil, err
	}
	r := &tracker.Receipt{ConversationId: conversationId, Identity: identity}
	if receipt.LastReadAt != nil {
		r.LastReadAt = *receipt.LastReadAt
	}
	return r, nil
}

// PutReceipt writes the receipt and signals the identity's other sessions
func (s *TrackerStore) PutReceipt(ctx context.Context, conversationId, identity string, fields map[string]any) error {
	if err := s.receipts.Upsert(ctx, conversationId, identity, fields); err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, identity); err != nil {
		log.CtxWarn(ctx, "publish receipt change failed: user_id=%s, error=%v", identity, err)
	}
	return nil
}

func (s *TrackerStore) ListMessages(ctx context.Context, conversationId string) ([]tracker.MessageStamp, error) {
	messages, err := s.messages.ListStamps(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	stamps := make([]tracker.MessageStamp, 0, len(messages))
	for _, m := range messages {
		stamps = append(stamps, tracker.MessageStamp{SenderId: m.SenderId, SentAt: m.SentAt})
	}
	return stamps, nil
}
