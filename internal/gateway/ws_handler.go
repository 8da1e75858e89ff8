package gateway

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// HandleHertzConnection authenticates the query token and serves the upgraded socket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	token := c.Query(QueryToken)
	sendId := c.Query(QuerySendId)
	sdkType := c.Query(QuerySDKType)
	if token == "" || sendId == "" {
		c.String(consts.StatusBadRequest, "missing required parameters")
		return
	}
	platformId, _ := strconv.Atoi(c.Query(QueryPlatformId))

	claims, err := s.tokens.ValidateTokenWithUser(ctx, token, sendId, platformId)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		connId := uuid.New().String()
		client := NewClient(newHertzConn(conn, s.cfg.WebSocket), claims.UserId, claims.PlatformId, sdkType, connId, s)
		s.serve(ctx, client)
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}

// serve registers client and blocks in its read loop
func (s *WsServer) serve(ctx context.Context, client *Client) {
	s.RegisterClient(ctx, client)
	if err := client.Start(); err != nil {
		log.CtxWarn(client.ctx, "start unread tracker failed: conn_id=%s, error=%v", client.ConnId, err)
	}
	client.readLoop()
}
