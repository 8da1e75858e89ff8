package identity

import (
	"sync"
)

// Session holds the currently authenticated identity of one client and
// notifies watchers on sign-in, sign-out and identity switch.
// The empty string means no identity.
type Session struct {
	mu       sync.Mutex
	current  string
	watchers map[int]func(identity string)
	nextId   int
}

// NewSession creates a signed-out session
func NewSession() *Session {
	return &Session{watchers: make(map[int]func(string))}
}

// Current returns the active identity or ""
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SignIn sets the active identity. Signing in with the active identity is a no-op.
func (s *Session) SignIn(identity string) {
	s.set(identity)
}

// SignOut clears the active identity
func (s *Session) SignOut() {
	s.set("")
}

// Watch registers fn for identity changes and returns its cancel func.
// fn runs on the goroutine that changed the identity.
func (s *Session) Watch(fn func(identity string)) func() {
	s.mu.Lock()
	id := s.nextId
	s.nextId++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Session) set(identity string) {
	s.mu.Lock()
	if s.current == identity {
		s.mu.Unlock()
		return
	}
	s.current = identity
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}
