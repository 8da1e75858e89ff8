package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/bazaar/pkg/constant"
)

const redisPayload = "changed"

// RedisFeed publishes on one Pub/Sub channel per user and listens to all of
// them through a single pattern subscription
type RedisFeed struct {
	rdb    redis.UniversalClient
	ps     *redis.PubSub
	hub    *hub
	prefix string
}

// NewRedisFeed subscribes to the feed pattern and starts dispatching
func NewRedisFeed(ctx context.Context, rdb redis.UniversalClient) (*RedisFeed, error) {
	ps := rdb.PSubscribe(ctx, constant.RedisKeyFeedAll())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe feed pattern: %w", err)
	}

	f := &RedisFeed{
		rdb:    rdb,
		ps:     ps,
		hub:    newHub(),
		prefix: fmt.Sprintf(constant.RedisKeyFeedConv(), ""),
	}
	go f.loop()
	return f, nil
}

func (f *RedisFeed) loop() {
	for msg := range f.ps.Channel() {
		userId := strings.TrimPrefix(msg.Channel, f.prefix)
		if userId == msg.Channel {
			continue
		}
		f.hub.dispatch(userId)
	}
	log.Debug("redis feed loop stopped")
}

// Publish signals every user in one pipeline round trip
func (f *RedisFeed) Publish(ctx context.Context, userIds ...string) error {
	if len(userIds) == 0 {
		return nil
	}
	pipe := f.rdb.Pipeline()
	for _, userId := range userIds {
		if !validUserId(userId) {
			return ErrInvalidUserId
		}
		pipe.Publish(ctx, f.prefix+userId, redisPayload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(_ context.Context, userId string, fn func()) (func(), error) {
	if !validUserId(userId) {
		return nil, ErrInvalidUserId
	}
	return f.hub.add(userId, fn)
}

// Close stops the pattern subscription. The redis client stays open.
func (f *RedisFeed) Close() error {
	f.hub.close()
	return f.ps.Close()
}
