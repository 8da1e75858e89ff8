package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/mbeoliero/bazaar/internal/gateway"
	"github.com/mbeoliero/bazaar/internal/tracker"
)

// wsClient speaks the gateway protocol over a gorilla connection
type wsClient struct {
	conn   *websocket.Conn
	userId string
	mu     sync.Mutex
	seq    atomic.Int64
}

// gatewayURL builds the /ws address with the authentication query
func gatewayURL(addr, token, userId string, platformId int) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	q := url.Values{}
	q.Set(gateway.QueryToken, token)
	q.Set(gateway.QuerySendId, userId)
	q.Set(gateway.QueryPlatformId, strconv.Itoa(platformId))
	q.Set(gateway.QuerySDKType, "unreadctl")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dial(addr, token, userId string, platformId int) (*wsClient, error) {
	target, err := gatewayURL(addr, token, userId, platformId)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsClient{conn: conn, userId: userId}, nil
}

// send writes a request and returns its msg_incr
func (c *wsClient) send(reqIdentifier int32, body any) (string, error) {
	req := gateway.WSRequest{
		ReqIdentifier: reqIdentifier,
		MsgIncr:       strconv.FormatInt(c.seq.Add(1), 10),
		SendId:        c.userId,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		req.Data = data
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return req.MsgIncr, c.conn.WriteMessage(websocket.TextMessage, data)
}

// next blocks for the next frame from the server
func (c *wsClient) next() (*gateway.WSResponse, error) {
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var resp gateway.WSResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &resp, nil
}

// await skips frames until the reply to msgIncr arrives
func (c *wsClient) await(msgIncr string) (*gateway.WSResponse, error) {
	for {
		resp, err := c.next()
		if err != nil {
			return nil, err
		}
		if resp.MsgIncr != msgIncr || resp.ReqIdentifier == gateway.WSPushUnread {
			continue
		}
		if resp.ErrCode != 0 {
			return nil, fmt.Errorf("server error %d: %s", resp.ErrCode, resp.ErrMsg)
		}
		return resp, nil
	}
}

func (c *wsClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// formatSnapshot renders a badge on one line, conversations in id order
func formatSnapshot(snap tracker.Snapshot) string {
	ids := make([]string, 0, len(snap.PerConversation))
	for id := range snap.PerConversation {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "user=%s total=%d", snap.Identity, snap.Total)
	for _, id := range ids {
		if n := snap.PerConversation[id]; n > 0 {
			fmt.Fprintf(&sb, " %s=%d", id, n)
		}
	}
	return sb.String()
}
