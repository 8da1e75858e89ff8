package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/bazaar/internal/config"
	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/jwt"
)

// TokenValidator authenticates connection and identity switch tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
	ValidateTokenWithUser(ctx context.Context, token, userId string, platformId int) (*jwt.Claims, error)
}

// MessageSender sends chat messages on behalf of a connection
type MessageSender interface {
	SendMessage(ctx context.Context, senderId string, req *service.SendMessageRequest) (*entity.MessageInfo, error)
}

// clientEvent moves a client in or out of the user map under userId
type clientEvent struct {
	client *Client
	userId string
}

// WsServer is the WebSocket server. Every connection runs its own unread tracker.
type WsServer struct {
	cfg            *config.Config
	userMap        *UserMap
	unregisterChan chan clientEvent
	tokens         TokenValidator
	chat           MessageSender
	store          tracker.Store
	sched          tracker.Scheduler
	trackerOpts    tracker.Options
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new WebSocket server. chat may be nil to disable WSSendMsg.
func NewWsServer(cfg *config.Config, rdb redis.Cmdable, tokens TokenValidator, chat MessageSender, store tracker.Store, opts tracker.Options) *WsServer {
	return &WsServer{
		cfg:            cfg,
		userMap:        NewUserMap(rdb),
		unregisterChan: make(chan clientEvent, 1000),
		tokens:         tokens,
		chat:           chat,
		store:          store,
		sched:          tracker.NewClockScheduler(),
		trackerOpts:    opts,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// Run starts the unregister loop and the presence refresher
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
	go s.refreshLoop(ctx)
}

// eventLoop handles client unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.unregisterChan:
			s.unregisterClient(ctx, ev)
		}
	}
}

func (s *WsServer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(onlineTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.userMap.RefreshAll(ctx)
		}
	}
}

func (s *WsServer) registerClient(ctx context.Context, ev clientEvent) {
	s.onlineConnNum.Add(1)
	if ev.userId == "" {
		return
	}
	if s.userMap.Register(ctx, ev.userId, ev.client) {
		s.onlineUserNum.Add(1)
	}

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, online_users=%d, online_conns=%d",
		ev.userId, ev.client.PlatformId, ev.client.ConnId, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

func (s *WsServer) unregisterClient(ctx context.Context, ev clientEvent) {
	s.onlineConnNum.Add(-1)
	isUserOffline := ev.userId != "" && s.userMap.Unregister(ctx, ev.userId, ev.client)
	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		ev.userId, ev.client.PlatformId, ev.client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// RegisterClient registers client under its current identity before any
// frame is read, so a later identity switch always finds it in the map
func (s *WsServer) RegisterClient(ctx context.Context, client *Client) {
	s.registerClient(ctx, clientEvent{client: client, userId: client.UserId()})
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- clientEvent{client: client, userId: client.UserId()}:
	default:
		log.Warn("unregister channel full: conn_id=%s", client.ConnId)
	}
}

// moveClient re-keys client in the user map after an identity switch or sign out
func (s *WsServer) moveClient(client *Client, from, to string) {
	ctx := context.Background()
	if from != "" && s.userMap.Unregister(ctx, from, client) {
		s.onlineUserNum.Add(-1)
	}
	if to != "" && s.userMap.Register(ctx, to, client) {
		s.onlineUserNum.Add(1)
	}
}

// KickPlatform closes the local connections of userId on platformId
func (s *WsServer) KickPlatform(userId string, platformId int) int {
	clients, ok := s.userMap.GetByPlatform(userId, platformId)
	if !ok {
		return 0
	}
	for _, client := range clients {
		_ = client.KickOnline()
	}
	return len(clients)
}

// IsOnline reports whether userId has a connection on any instance
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.userMap.IsOnline(ctx, userId)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}
