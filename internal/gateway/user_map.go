package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/bazaar/pkg/constant"
)

const onlineTTL = 60 * time.Second

// UserMap indexes the local connections by the user they are signed in as
type UserMap struct {
	mu    sync.RWMutex
	users map[string]*UserPlatform
	rdb   redis.Cmdable
}

// UserPlatform holds all connections for a user
type UserPlatform struct {
	Clients []*Client
	Time    time.Time
}

// NewUserMap creates a new UserMap. A nil rdb keeps presence local.
func NewUserMap(rdb redis.Cmdable) *UserMap {
	return &UserMap{
		users: make(map[string]*UserPlatform),
		rdb:   rdb,
	}
}

// Register adds client under userId and reports whether the user just came online
func (m *UserMap) Register(ctx context.Context, userId string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		userPlatform = &UserPlatform{Clients: make([]*Client, 0, 4)}
		m.users[userId] = userPlatform
	}
	userPlatform.Clients = append(userPlatform.Clients, client)
	userPlatform.Time = time.Now()

	m.setOnline(ctx, userId)
	return !exists
}

// Unregister removes client from userId and reports whether the user went offline
func (m *UserMap) Unregister(ctx context.Context, userId string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return false
	}

	remaining := make([]*Client, 0, len(userPlatform.Clients))
	for _, c := range userPlatform.Clients {
		if c.ConnId != client.ConnId {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == len(userPlatform.Clients) {
		return false
	}
	userPlatform.Clients = remaining

	if len(userPlatform.Clients) == 0 {
		delete(m.users, userId)
		m.setOffline(ctx, userId)
		return true
	}
	return false
}

// GetByPlatform gets clients for a specific platform
func (m *UserMap) GetByPlatform(userId string, platformId int) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	var clients []*Client
	for _, c := range userPlatform.Clients {
		if c.PlatformId == platformId {
			clients = append(clients, c)
		}
	}
	return clients, len(clients) > 0
}

// HasConnection checks if user has any local connection
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	return exists && len(userPlatform.Clients) > 0
}

// IsOnline checks local connections, then the presence keys of other instances
func (m *UserMap) IsOnline(ctx context.Context, userId string) bool {
	if m.HasConnection(userId) {
		return true
	}
	if m.rdb == nil {
		return false
	}
	exists, _ := m.rdb.Exists(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId)).Result()
	return exists > 0
}

// RefreshAll extends the presence TTL of every local user
func (m *UserMap) RefreshAll(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	userIds := m.OnlineUserIds()
	if len(userIds) == 0 {
		return
	}
	pipe := m.rdb.Pipeline()
	for _, userId := range userIds {
		pipe.Expire(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId), onlineTTL)
	}
	_, _ = pipe.Exec(ctx)
}

// OnlineUserIds returns the locally connected user ids
func (m *UserMap) OnlineUserIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userIds := make([]string, 0, len(m.users))
	for userId := range m.users {
		userIds = append(userIds, userId)
	}
	return userIds
}

func (m *UserMap) setOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Set(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId), "1", onlineTTL)
}

func (m *UserMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Del(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId))
}
