package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/nats-io/nats.go"

	"github.com/mbeoliero/bazaar/internal/config"
)

// ConnectNats opens a NATS connection that reconnects forever by default
func ConnectNats(cfg config.NatsConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected: url=%s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NatsFeed publishes core NATS messages on {prefix}.feed.conv.{user}
// and listens to the whole subtree with one wildcard subscription
type NatsFeed struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	hub  *hub
	base string
}

// NewNatsFeed subscribes to the feed subtree. The feed owns nc from here on.
func NewNatsFeed(nc *nats.Conn, subjectPrefix string) (*NatsFeed, error) {
	f := &NatsFeed{
		nc:   nc,
		hub:  newHub(),
		base: subjectPrefix + ".feed.conv.",
	}
	sub, err := nc.Subscribe(f.base+"*", func(m *nats.Msg) {
		f.hub.dispatch(strings.TrimPrefix(m.Subject, f.base))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe feed subject: %w", err)
	}
	f.sub = sub
	return f, nil
}

func (f *NatsFeed) Publish(_ context.Context, userIds ...string) error {
	for _, userId := range userIds {
		if !validUserId(userId) {
			return ErrInvalidUserId
		}
		if err := f.nc.Publish(f.base+userId, nil); err != nil {
			return fmt.Errorf("publish feed: %w", err)
		}
	}
	return nil
}

func (f *NatsFeed) Subscribe(_ context.Context, userId string, fn func()) (func(), error) {
	if !validUserId(userId) {
		return nil, ErrInvalidUserId
	}
	return f.hub.add(userId, fn)
}

// Close drains the subscription and the connection
func (f *NatsFeed) Close() error {
	f.hub.close()
	if err := f.sub.Drain(); err != nil {
		log.Warn("drain feed subscription failed: %v", err)
	}
	return f.nc.Drain()
}
