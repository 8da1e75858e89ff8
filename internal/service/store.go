package service

import (
	"context"
	"slices"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

// ChatStore is where conversations and messages live. Both the MySQL and the
// MongoDB stores implement it.
type ChatStore interface {
	FindPairConversation(ctx context.Context, pairKey string) (*entity.Conversation, error)
	// CreateConversation returns entity.ErrDuplicate when the pair key is taken
	CreateConversation(ctx context.Context, conv *entity.Conversation, memberIds []string) error
	BackfillListing(ctx context.Context, conversationId, listingId, sellerId string) error
	// AppendMessage assigns SentAt from the store clock
	AppendMessage(ctx context.Context, msg *entity.Message) error
	FindMessageByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, []string, error)
	ListUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, map[string][]string, error)
	ListMessagePage(ctx context.Context, conversationId string, before time.Time, limit int) ([]*entity.Message, error)
}

// ListingFinder looks listings up for chat previews
type ListingFinder interface {
	GetById(ctx context.Context, id string) (*entity.Listing, error)
}

// loadMembership gets a conversation and fails unless userId belongs to it
func loadMembership(ctx context.Context, store ChatStore, conversationId, userId string) (*entity.Conversation, []string, error) {
	if conversationId == "" {
		return nil, nil, errcode.ErrInvalidParam
	}
	conv, members, err := store.GetConversation(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, nil, errcode.ErrConvNotFound
	}
	if !slices.Contains(members, userId) {
		return nil, nil, errcode.ErrNotConvMember
	}
	return conv, members, nil
}

// notify signals the members' trackers. Failures only delay their badges.
func notify(ctx context.Context, f feed.Feed, userIds ...string) {
	if f == nil || len(userIds) == 0 {
		return
	}
	if err := f.Publish(ctx, userIds...); err != nil {
		log.CtxWarn(ctx, "publish conversation change failed: user_ids=%v, error=%v", userIds, err)
	}
}
