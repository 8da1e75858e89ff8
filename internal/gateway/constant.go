package gateway

// WebSocket protocol identifiers
const (
	// Requests
	WSGetUnread         = 1001 // current badge snapshot
	WSCountConversation = 1002 // server-truth count of one conversation
	WSMarkRead          = 1003 // optimistic mark-as-read
	WSSwitchIdentity    = 1004 // re-authenticate the session as another user
	WSSignOut           = 1005 // drop the session identity, keep the socket
	WSSendMsg           = 1006 // send a chat message
	WSRefreshUnread     = 1007 // recount every conversation, then reply like WSGetUnread

	// Pushes
	WSPushUnread    = 2001 // badge snapshot after every change
	WSKickOnlineMsg = 2002 // kicked by another login
	WSDataError     = 3001 // undecodable frame
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)
