package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/internal/config"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/jwt"
)

var errConnGone = errors.New("connection gone")

// fakeConn feeds frames pushed by the test and records what the client writes
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errConnGone
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case c.out <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, req WSRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	c.in <- data
}

// await returns the next frame with the given identifier, skipping the others
func (c *fakeConn) await(t *testing.T, reqIdentifier int32) WSResponse {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.out:
			var resp WSResponse
			require.NoError(t, json.Unmarshal(data, &resp))
			if resp.ReqIdentifier == reqIdentifier {
				return resp
			}
		case <-deadline:
			t.Fatalf("no frame with req_identifier=%d", reqIdentifier)
			return WSResponse{}
		}
	}
}

// memStore serves fixed conversations and messages to the trackers
type memStore struct {
	mu       sync.Mutex
	convs    map[string][]string
	messages map[string][]tracker.MessageStamp
	receipts map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[string][]string),
		messages: make(map[string][]tracker.MessageStamp),
		receipts: make(map[string]time.Time),
	}
}

func (s *memStore) addMessage(convId, senderId string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		found := false
		for _, id := range s.convs[m] {
			found = found || id == convId
		}
		if !found {
			s.convs[m] = append(s.convs[m], convId)
		}
	}
	s.messages[convId] = append(s.messages[convId], tracker.MessageStamp{SenderId: senderId, SentAt: time.Now()})
}

func (s *memStore) WatchConversations(ctx context.Context, identity string, onChange func([]string)) (func(), error) {
	return func() {}, nil
}

func (s *memStore) ListConversations(ctx context.Context, identity string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.convs[identity]...), nil
}

func (s *memStore) GetReceipt(ctx context.Context, conversationId, identity string) (*tracker.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.receipts[conversationId+"/"+identity]
	if !ok {
		return nil, nil
	}
	return &tracker.Receipt{ConversationId: conversationId, Identity: identity, LastReadAt: at}, nil
}

func (s *memStore) PutReceipt(ctx context.Context, conversationId, identity string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[conversationId+"/"+identity] = time.Now()
	return nil
}

func (s *memStore) ListMessages(ctx context.Context, conversationId string) ([]tracker.MessageStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracker.MessageStamp(nil), s.messages[conversationId]...), nil
}

// tokenTable maps tokens straight to claims
type tokenTable map[string]*jwt.Claims

func (t tokenTable) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

func (t tokenTable) ValidateTokenWithUser(ctx context.Context, token, userId string, platformId int) (*jwt.Claims, error) {
	claims, err := t.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.UserId != userId || claims.PlatformId != platformId {
		return nil, errcode.ErrTokenMismatch
	}
	return claims, nil
}

func newTestServer(store tracker.Store, tokens TokenValidator) *WsServer {
	cfg := &config.Config{WebSocket: config.WebSocketConfig{MaxConnNum: 10, SnapshotBuffer: 4}}
	return NewWsServer(cfg, nil, tokens, nil, store, tracker.DefaultOptions())
}
