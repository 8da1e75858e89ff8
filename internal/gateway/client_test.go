package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

type connected struct {
	conn   *fakeConn
	client *Client
	done   chan struct{}
}

func connect(t *testing.T, server *WsServer, userId string) *connected {
	t.Helper()
	conn := newFakeConn()
	client := NewClient(conn, userId, constant.PlatformIdWeb, "web", "conn-"+userId, server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.serve(context.Background(), client)
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-done
	})
	return &connected{conn: conn, client: client, done: done}
}

func decodeSnapshot(t *testing.T, resp WSResponse) tracker.Snapshot {
	t.Helper()
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var snap tracker.Snapshot
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	return snap
}

func TestClient_GetUnreadAndMarkRead(t *testing.T) {
	store := newMemStore()
	store.addMessage("c1", "bob", "alice", "bob")
	store.addMessage("c1", "bob", "alice", "bob")
	store.addMessage("c2", "carol", "alice", "carol")
	server := newTestServer(store, tokenTable{})

	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread, MsgIncr: "1"})
	resp := c.conn.await(t, WSGetUnread)
	assert.Equal(t, "1", resp.MsgIncr)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, "alice", snap.Identity)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, map[string]int{"c1": 2, "c2": 1}, snap.PerConversation)

	data, _ := json.Marshal(ConversationReq{ConversationId: "c1"})
	c.conn.send(t, WSRequest{ReqIdentifier: WSMarkRead, Data: data})
	snap = decodeSnapshot(t, c.conn.await(t, WSMarkRead))
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 0, snap.PerConversation["c1"])

	c.conn.send(t, WSRequest{ReqIdentifier: WSCountConversation, Data: data})
	resp = c.conn.await(t, WSCountConversation)
	require.Zero(t, resp.ErrCode)
	var count CountConversationResp
	require.NoError(t, json.Unmarshal(resp.Data, &count))
	assert.Equal(t, "c1", count.ConversationId)
	assert.True(t, count.Optimistic)
}

func TestClient_PushesSnapshots(t *testing.T) {
	store := newMemStore()
	store.addMessage("c1", "bob", "alice", "bob")
	server := newTestServer(store, tokenTable{})

	c := connect(t, server, "alice")
	for {
		snap := decodeSnapshot(t, c.conn.await(t, WSPushUnread))
		if snap.Total == 1 {
			assert.Equal(t, "alice", snap.Identity)
			return
		}
	}
}

func TestClient_SwitchIdentity(t *testing.T) {
	store := newMemStore()
	store.addMessage("c1", "bob", "alice", "bob")
	store.addMessage("c9", "alice", "dave", "alice")
	tokens := tokenTable{
		"dave-web":    {UserId: "dave", PlatformId: constant.PlatformIdWeb},
		"dave-mobile": {UserId: "dave", PlatformId: constant.PlatformIdIOS},
	}
	server := newTestServer(store, tokens)

	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	c.conn.await(t, WSGetUnread)
	assert.True(t, server.userMap.HasConnection("alice"))

	data, _ := json.Marshal(SwitchIdentityReq{Token: "dave-mobile"})
	c.conn.send(t, WSRequest{ReqIdentifier: WSSwitchIdentity, Data: data})
	assert.Equal(t, errcode.ErrTokenMismatch.Code, c.conn.await(t, WSSwitchIdentity).ErrCode)

	data, _ = json.Marshal(SwitchIdentityReq{Token: "nope"})
	c.conn.send(t, WSRequest{ReqIdentifier: WSSwitchIdentity, Data: data})
	assert.Equal(t, errcode.ErrTokenInvalid.Code, c.conn.await(t, WSSwitchIdentity).ErrCode)

	data, _ = json.Marshal(SwitchIdentityReq{Token: "dave-web"})
	c.conn.send(t, WSRequest{ReqIdentifier: WSSwitchIdentity, Data: data})
	resp := c.conn.await(t, WSSwitchIdentity)
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var switched SwitchIdentityResp
	require.NoError(t, json.Unmarshal(resp.Data, &switched))
	assert.Equal(t, "dave", switched.UserId)
	assert.Equal(t, "dave", c.client.UserId())
	assert.False(t, server.userMap.HasConnection("alice"))
	assert.True(t, server.userMap.HasConnection("dave"))

	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	snap := decodeSnapshot(t, c.conn.await(t, WSGetUnread))
	assert.Equal(t, "dave", snap.Identity)
	assert.Equal(t, map[string]int{"c9": 1}, snap.PerConversation)
}

func TestClient_SignOut(t *testing.T) {
	store := newMemStore()
	store.addMessage("c1", "bob", "alice", "bob")
	server := newTestServer(store, tokenTable{})

	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSSignOut})
	resp := c.conn.await(t, WSSignOut)
	assert.Zero(t, resp.ErrCode)
	assert.Empty(t, c.client.UserId())
	assert.False(t, server.userMap.HasConnection("alice"))

	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	assert.Equal(t, errcode.ErrTrackerIdle.Code, c.conn.await(t, WSGetUnread).ErrCode)
}

func TestClient_RejectsBadFrames(t *testing.T) {
	server := newTestServer(newMemStore(), tokenTable{})
	c := connect(t, server, "alice")

	c.conn.in <- []byte("{not json")
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, c.conn.await(t, WSDataError).ErrCode)

	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread, SendId: "mallory"})
	assert.Equal(t, errcode.ErrTokenMismatch.Code, c.conn.await(t, WSGetUnread).ErrCode)

	c.conn.send(t, WSRequest{ReqIdentifier: WSMarkRead, Data: json.RawMessage(`{}`)})
	assert.Equal(t, errcode.ErrInvalidParam.Code, c.conn.await(t, WSMarkRead).ErrCode)

	c.conn.send(t, WSRequest{ReqIdentifier: WSSendMsg, Data: json.RawMessage(`{}`)})
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, c.conn.await(t, WSSendMsg).ErrCode)

	c.conn.send(t, WSRequest{ReqIdentifier: 4242})
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, c.conn.await(t, 4242).ErrCode)
}

func TestClient_CloseDisposesTracker(t *testing.T) {
	server := newTestServer(newMemStore(), tokenTable{})
	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	c.conn.await(t, WSGetUnread)

	require.NoError(t, c.conn.Close())
	<-c.done

	assert.True(t, c.client.IsClosed())
	assert.ErrorIs(t, c.client.tracker.StartListening(context.Background()), tracker.ErrDisposed)

	ev := <-server.unregisterChan
	assert.Equal(t, "alice", ev.userId)
	server.unregisterClient(context.Background(), ev)
	assert.False(t, server.userMap.HasConnection("alice"))
	assert.Zero(t, server.GetOnlineConnCount())
}

func TestClient_KickOnline(t *testing.T) {
	server := newTestServer(newMemStore(), tokenTable{})
	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	c.conn.await(t, WSGetUnread)

	assert.Zero(t, server.KickPlatform("alice", constant.PlatformIdIOS))
	assert.Equal(t, 1, server.KickPlatform("alice", constant.PlatformIdWeb))
	c.conn.await(t, WSKickOnlineMsg)
	<-c.done
	assert.True(t, c.client.IsClosed())
}

func TestClient_RefreshUnread(t *testing.T) {
	store := newMemStore()
	store.addMessage("c1", "bob", "alice", "bob")
	server := newTestServer(store, tokenTable{})

	c := connect(t, server, "alice")
	c.conn.send(t, WSRequest{ReqIdentifier: WSGetUnread})
	assert.Equal(t, 1, decodeSnapshot(t, c.conn.await(t, WSGetUnread)).Total)

	// the test store never signals, so only an explicit refresh sees this
	store.addMessage("c2", "carol", "alice", "carol")
	c.conn.send(t, WSRequest{ReqIdentifier: WSRefreshUnread})
	snap := decodeSnapshot(t, c.conn.await(t, WSRefreshUnread))
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, snap.PerConversation)
}
