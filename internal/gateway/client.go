package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/identity"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

// Client is one WebSocket connection. It owns an identity session and the
// unread tracker that follows it.
type Client struct {
	mu          sync.Mutex
	conn        ClientConn
	PlatformId  int
	SDKType     string
	ConnId      string
	server      *WsServer
	session     *identity.Session
	tracker     *tracker.Tracker
	unsubscribe func()
	closed      atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewClient creates a client signed in as userId
func NewClient(conn ClientConn, userId string, platformId int, sdkType, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	session := identity.NewSession()
	session.SignIn(userId)
	return &Client{
		conn:       conn,
		PlatformId: platformId,
		SDKType:    sdkType,
		ConnId:     connId,
		server:     server,
		session:    session,
		tracker:    tracker.New(server.store, session, server.sched, server.trackerOpts),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// UserId returns the identity the connection is signed in as, "" after sign out
func (c *Client) UserId() string {
	return c.session.Current()
}

// Start begins pushing badge snapshots and subscribes the tracker
func (c *Client) Start() error {
	snapshots, unsubscribe := c.tracker.Subscribe(c.server.cfg.WebSocket.SnapshotBuffer)
	c.unsubscribe = unsubscribe
	go c.pushLoop(snapshots)

	return c.tracker.StartListening(c.ctx)
}

func (c *Client) pushLoop(snapshots <-chan tracker.Snapshot) {
	for snap := range snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if err := c.writeResponse(WSResponse{ReqIdentifier: WSPushUnread, Data: data}); err != nil {
			log.CtxDebug(c.ctx, "push unread failed: conn_id=%s, error=%v", c.ConnId, err)
		}
	}
}

// readLoop reads frames until the connection fails
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(c.ctx, "client read loop panic: conn_id=%s, error=%v", c.ConnId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: conn_id=%s, error=%v", c.ConnId, err)
			return
		}
		if c.closed.Load() {
			return
		}
		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: conn_id=%s, error=%v", c.ConnId, err)
			return
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.reply(&WSRequest{ReqIdentifier: WSDataError}, errcode.ErrInvalidProtocol, nil)
	}

	userId := c.UserId()
	if req.SendId != "" && req.SendId != userId {
		return c.reply(&req, errcode.ErrTokenMismatch, nil)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, userId)

	var (
		resp any
		err  error
	)
	switch req.ReqIdentifier {
	case WSSwitchIdentity:
		resp, err = c.handleSwitchIdentity(&req)
	case WSSignOut:
		c.signOut()
	default:
		if userId == "" {
			err = errcode.ErrTrackerIdle
			break
		}
		resp, err = c.handleSignedIn(&req, userId)
	}
	return c.reply(&req, err, resp)
}

func (c *Client) handleSignedIn(req *WSRequest, userId string) (any, error) {
	switch req.ReqIdentifier {
	case WSGetUnread:
		return c.tracker.Snapshot(), nil

	case WSRefreshUnread:
		c.tracker.CalculateUnreadCount(c.ctx)
		return c.tracker.Snapshot(), nil

	case WSCountConversation:
		var body ConversationReq
		if err := json.Unmarshal(req.Data, &body); err != nil || body.ConversationId == "" {
			return nil, errcode.ErrInvalidParam
		}
		return &CountConversationResp{
			ConversationId: body.ConversationId,
			Unread:         c.tracker.CountUnreadInConversation(c.ctx, body.ConversationId),
			Optimistic:     c.tracker.IsOptimistic(body.ConversationId),
		}, nil

	case WSMarkRead:
		var body ConversationReq
		if err := json.Unmarshal(req.Data, &body); err != nil || body.ConversationId == "" {
			return nil, errcode.ErrInvalidParam
		}
		c.tracker.MarkConversationAsRead(c.ctx, body.ConversationId)
		return c.tracker.Snapshot(), nil

	case WSSendMsg:
		if c.server.chat == nil {
			return nil, errcode.ErrInvalidProtocol
		}
		var body service.SendMessageRequest
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return nil, errcode.ErrInvalidParam
		}
		return c.server.chat.SendMessage(c.ctx, userId, &body)

	default:
		return nil, errcode.ErrInvalidProtocol
	}
}

// handleSwitchIdentity re-authenticates the connection as the token's user.
// The tracker follows the session and drops every state of the old identity.
func (c *Client) handleSwitchIdentity(req *WSRequest) (any, error) {
	var body SwitchIdentityReq
	if err := json.Unmarshal(req.Data, &body); err != nil || body.Token == "" {
		return nil, errcode.ErrInvalidParam
	}
	claims, err := c.server.tokens.ValidateToken(c.ctx, body.Token)
	if err != nil {
		return nil, err
	}
	if claims.PlatformId != c.PlatformId {
		return nil, errcode.ErrTokenMismatch
	}

	prev := c.UserId()
	if prev != claims.UserId {
		c.server.moveClient(c, prev, claims.UserId)
		c.session.SignIn(claims.UserId)
		log.CtxInfo(c.ctx, "connection switched identity: conn_id=%s, from=%s, to=%s", c.ConnId, prev, claims.UserId)
	}
	return &SwitchIdentityResp{UserId: claims.UserId}, nil
}

func (c *Client) signOut() {
	prev := c.UserId()
	if prev == "" {
		return
	}
	c.server.moveClient(c, prev, "")
	c.session.SignOut()
	log.CtxInfo(c.ctx, "connection signed out: conn_id=%s, user_id=%s", c.ConnId, prev)
}

func (c *Client) reply(req *WSRequest, err error, body any) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
	}
	if err != nil {
		e := errcode.From(err)
		resp.ErrCode = e.Code
		resp.ErrMsg = e.Msg
	} else if body != nil {
		data, mErr := json.Marshal(body)
		if mErr != nil {
			return mErr
		}
		resp.Data = data
	}
	return c.writeResponse(resp)
}

func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(data)
}

// KickOnline tells the client it was replaced and closes the connection
func (c *Client) KickOnline() error {
	_ = c.writeResponse(WSResponse{ReqIdentifier: WSKickOnlineMsg})
	return c.Close()
}

// Close closes the connection. The read loop then disposes the tracker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

func (c *Client) close() {
	_ = c.Close()
	c.tracker.Dispose()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
