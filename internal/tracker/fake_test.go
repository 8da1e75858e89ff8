package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var errDenied = errors.New("permission denied")

type fakeTask struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

// fakeClock is a Scheduler on logical time. Tasks run only inside Advance.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTask
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	task := &fakeTask{at: c.now.Add(d), seq: c.seq, fn: fn}
	c.tasks = append(c.tasks, task)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if task.stopped {
			return false
		}
		task.stopped = true
		return true
	}
}

// Advance moves time forward by d, running due tasks in order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTask
		idx := -1
		for i, task := range c.tasks {
			if task.stopped || task.at.After(target) {
				continue
			}
			if next == nil || task.at.Before(next.at) || (task.at.Equal(next.at) && task.seq < next.seq) {
				next, idx = task, i
			}
		}
		if next == nil {
			c.now = target
			c.tasks = slices.DeleteFunc(c.tasks, func(t *fakeTask) bool { return t.stopped })
			c.mu.Unlock()
			return
		}
		c.tasks = slices.Delete(c.tasks, idx, idx+1)
		next.stopped = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.fn()
	}
}

type memWatcher struct {
	identity string
	fn       func([]string)
}

// memStore is an in-memory Store. Receipts and messages get their
// timestamps from the fake clock, like a server clock would.
type memStore struct {
	mu        sync.Mutex
	clock     *fakeClock
	members   map[string][]string
	messages  map[string][]MessageStamp
	receipts  map[string]*Receipt
	writtenAt map[string]time.Time
	watchers  map[int]memWatcher
	nextWatch int
	events    []string
	puts      int

	// receiptLag hides a written receipt until the clock passes writtenAt+lag
	receiptLag     time.Duration
	putErr         error
	getReceiptErr  error
	listConvErr    error
	listMessageErr error
	watchErr       error
	// afterListMessages runs after the messages were copied, outside the lock
	afterListMessages func(conversationId string)
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		clock:     clock,
		members:   make(map[string][]string),
		messages:  make(map[string][]MessageStamp),
		receipts:  make(map[string]*Receipt),
		writtenAt: make(map[string]time.Time),
		watchers:  make(map[int]memWatcher),
	}
}

func receiptKey(conversationId, identity string) string {
	return conversationId + "|" + identity
}

func (s *memStore) AddConversation(id string, members ...string) {
	s.mu.Lock()
	s.members[id] = members
	s.mu.Unlock()
	s.notify(members...)
}

// AddMessage stores a message stamped with the current clock and notifies members
func (s *memStore) AddMessage(conversationId, senderId string) {
	s.AddMessageAt(conversationId, senderId, s.clock.Now())
}

func (s *memStore) AddMessageAt(conversationId, senderId string, sentAt any) {
	s.mu.Lock()
	s.messages[conversationId] = append(s.messages[conversationId], MessageStamp{SenderId: senderId, SentAt: sentAt})
	members := s.members[conversationId]
	s.mu.Unlock()
	s.notify(members...)
}

func (s *memStore) SetReceipt(conversationId, identity string, lastReadAt any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receiptKey(conversationId, identity)] = &Receipt{ConversationId: conversationId, Identity: identity, LastReadAt: lastReadAt}
}

func (s *memStore) conversationsOf(identity string) []string {
	var ids []string
	for id, members := range s.members {
		if slices.Contains(members, identity) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *memStore) notify(identities ...string) {
	s.mu.Lock()
	var calls []func()
	for _, w := range s.watchers {
		if !slices.Contains(identities, w.identity) {
			continue
		}
		ids := s.conversationsOf(w.identity)
		fn := w.fn
		calls = append(calls, func() { fn(ids) })
	}
	s.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

func (s *memStore) WatchConversations(_ context.Context, identity string, onChange func([]string)) (func(), error) {
	s.mu.Lock()
	if s.watchErr != nil {
		s.mu.Unlock()
		return nil, s.watchErr
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = memWatcher{identity: identity, fn: onChange}
	s.events = append(s.events, "watch:"+identity)
	ids := s.conversationsOf(identity)
	s.mu.Unlock()

	onChange(ids)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			s.events = append(s.events, "unwatch:"+identity)
		}
	}, nil
}

func (s *memStore) ListConversations(_ context.Context, identity string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listConvErr != nil {
		return nil, s.listConvErr
	}
	return s.conversationsOf(identity), nil
}

func (s *memStore) GetReceipt(_ context.Context, conversationId, identity string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getReceiptErr != nil {
		return nil, s.getReceiptErr
	}
	key := receiptKey(conversationId, identity)
	r, ok := s.receipts[key]
	if !ok {
		return nil, nil
	}
	if at, written := s.writtenAt[key]; written && s.clock.Now().Before(at.Add(s.receiptLag)) {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) PutReceipt(_ context.Context, conversationId, identity string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if fields["source"] == nil {
		return fmt.Errorf("missing source field")
	}
	s.puts++
	key := receiptKey(conversationId, identity)
	now := s.clock.Now()
	s.receipts[key] = &Receipt{ConversationId: conversationId, Identity: identity, LastReadAt: now}
	s.writtenAt[key] = now
	return nil
}

func (s *memStore) ListMessages(_ context.Context, conversationId string) ([]MessageStamp, error) {
	s.mu.Lock()
	if s.listMessageErr != nil {
		s.mu.Unlock()
		return nil, s.listMessageErr
	}
	msgs := slices.Clone(s.messages[conversationId])
	hook := s.afterListMessages
	s.mu.Unlock()

	if hook != nil {
		hook(conversationId)
	}
	return msgs, nil
}

func (s *memStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *memStore) WatcherCount(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.watchers {
		if w.identity == identity {
			n++
		}
	}
	return n
}

func (s *memStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *memStore) set(fn func(s *memStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}
