package feed

import (
	"sync"
)

type subscription struct {
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// hub fans one transport subscription out to the in-process subscribers
type hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscription
	next   uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]*subscription)}
}

func (h *hub) add(userId string, fn func()) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	id := h.next
	h.next++
	if h.subs[userId] == nil {
		h.subs[userId] = make(map[uint64]*subscription)
	}
	h.subs[userId][id] = sub

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-sub.signal:
				fn()
			}
		}
	}()

	return func() {
		h.mu.Lock()
		if subs, ok := h.subs[userId]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.subs, userId)
			}
		}
		h.mu.Unlock()
		sub.stop()
	}, nil
}

// dispatch signals every subscriber of userId without blocking
func (h *hub) dispatch(userId string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[userId] {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (h *hub) count(userId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userId])
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userId, subs := range h.subs {
		for _, sub := range subs {
			sub.stop()
		}
		delete(h.subs, userId)
	}
}
