package service

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

// UnreadService answers unread queries straight from the store, without the
// optimistic state a connected tracker keeps
type UnreadService struct {
	store       tracker.Store
	chats       ChatStore
	counter     *tracker.Counter
	concurrency int
	now         func() time.Time
}

// NewUnreadService creates a new UnreadService
func NewUnreadService(store tracker.Store, chats ChatStore, counter *tracker.Counter, concurrency int) *UnreadService {
	if concurrency <= 0 {
		concurrency = tracker.DefaultConcurrency
	}
	return &UnreadService{
		store:       store,
		chats:       chats,
		counter:     counter,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// CountConversation counts the unread messages of userId in one conversation
func (s *UnreadService) CountConversation(ctx context.Context, userId, conversationId string) (int, error) {
	if _, _, err := loadMembership(ctx, s.chats, conversationId, userId); err != nil {
		return 0, err
	}
	return s.counter.Count(ctx, conversationId, userId), nil
}

// Summary counts every conversation of userId
func (s *UnreadService) Summary(ctx context.Context, userId string) (*tracker.Snapshot, error) {
	ids, err := s.store.ListConversations(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	var mu sync.Mutex
	snap := &tracker.Snapshot{Identity: userId, PerConversation: make(map[string]int, len(ids))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			n := s.counter.Count(gctx, id, userId)
			mu.Lock()
			snap.PerConversation[id] = n
			snap.Total += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return snap, nil
}

// MarkRead writes a durable read receipt stamped by the store clock
func (s *UnreadService) MarkRead(ctx context.Context, userId, conversationId string) error {
	if _, _, err := loadMembership(ctx, s.chats, conversationId, userId); err != nil {
		return err
	}

	err := s.store.PutReceipt(ctx, conversationId, userId, map[string]any{
		"client_marked_at": s.now().UTC(),
		"source":           constant.ReceiptSourceHTTP,
	})
	if err != nil {
		log.CtxError(ctx, "write receipt failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return errcode.ErrReceiptFailed
	}
	return nil
}
