package tracker

import (
	"context"
	"errors"
)

var (
	ErrNoIdentity = errors.New("tracker: no authenticated identity")
	ErrDisposed   = errors.New("tracker: disposed")
)

// Receipt is the read receipt of one identity in one conversation.
// LastReadAt keeps the store's raw encoding and is normalized by the counter.
type Receipt struct {
	ConversationId string
	Identity       string
	LastReadAt     any
}

// MessageStamp is the part of a message the counter needs
type MessageStamp struct {
	SenderId string
	SentAt   any
}

// Store is the data access the tracker consumes
type Store interface {
	// WatchConversations streams the ids of conversations whose members include identity.
	// onChange is called on every add, remove or update of a matching conversation.
	WatchConversations(ctx context.Context, identity string, onChange func(conversationIds []string)) (cancel func(), err error)
	ListConversations(ctx context.Context, identity string) ([]string, error)
	// GetReceipt returns nil when no receipt exists
	GetReceipt(ctx context.Context, conversationId, identity string) (*Receipt, error)
	// PutReceipt upserts the receipt, merging fields. lastReadAt is assigned by the store clock.
	PutReceipt(ctx context.Context, conversationId, identity string, fields map[string]any) error
	ListMessages(ctx context.Context, conversationId string) ([]MessageStamp, error)
}

// IdentitySource reports the authenticated identity, "" when signed out
type IdentitySource interface {
	Current() string
	Watch(fn func(identity string)) (cancel func())
}
