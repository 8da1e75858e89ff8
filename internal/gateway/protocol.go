package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/bazaar/internal/tracker"
)

// WSRequest is a frame sent by the client
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"` // client trace id, echoed back
	OperationId   string          `json:"operation_id"`
	SendId        string          `json:"send_id"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// WSResponse is a reply or a push sent by the server
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id"`
	ErrCode       int             `json:"err_code"` // 0 = success
	ErrMsg        string          `json:"err_msg"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// ConversationReq names one conversation
type ConversationReq struct {
	ConversationId string `json:"conversation_id"`
}

// CountConversationResp is the reply to WSCountConversation
type CountConversationResp struct {
	ConversationId string `json:"conversation_id"`
	Unread         int    `json:"unread"`
	// Optimistic reports that the badge shows 0 for this conversation regardless of Unread
	Optimistic bool `json:"optimistic"`
}

// SwitchIdentityReq carries the token of the identity to switch to
type SwitchIdentityReq struct {
	Token string `json:"token"`
}

// SwitchIdentityResp is the reply to WSSwitchIdentity
type SwitchIdentityResp struct {
	UserId string `json:"user_id"`
}

// UnreadPush is the payload of WSPushUnread and the reply to WSGetUnread and WSMarkRead
type UnreadPush = tracker.Snapshot
