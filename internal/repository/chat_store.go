package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// ChatStore keeps conversations and messages in MySQL
type ChatStore struct {
	repos *Repositories
}

// NewChatStore creates a ChatStore
func NewChatStore(repos *Repositories) *ChatStore {
	return &ChatStore{repos: repos}
}

// FindPairConversation gets the one-to-one conversation for a pair key, nil when absent
func (s *ChatStore) FindPairConversation(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	return s.repos.Conversation.FindByPairKey(ctx, pairKey)
}

// CreateConversation inserts the conversation with its members, entity.ErrDuplicate when the pair already has one
func (s *ChatStore) CreateConversation(ctx context.Context, conv *entity.Conversation, memberIds []string) error {
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		return s.repos.Conversation.Create(ctx, tx, conv, memberIds)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entity.ErrDuplicate
	}
	return err
}

// BackfillListing ties an existing conversation to a listing
func (s *ChatStore) BackfillListing(ctx context.Context, conversationId, listingId, sellerId string) error {
	return s.repos.Conversation.Update(ctx, s.repos.DB, conversationId, map[string]any{
		"listing_id": listingId,
		"seller_id":  sellerId,
	})
}

// AppendMessage stores msg and moves the conversation's last message to it
func (s *ChatStore) AppendMessage(ctx context.Context, msg *entity.Message) error {
	return s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Message.Create(ctx, tx, msg); err != nil {
			return err
		}
		return s.repos.Conversation.Update(ctx, tx, msg.ConversationId, map[string]any{
			"last_message":    msg.Content,
			"last_message_at": msg.SentAt.UnixMilli(),
		})
	})
}

// FindMessageByClientMsgId gets a message by its client id, nil when absent
func (s *ChatStore) FindMessageByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	return s.repos.Message.GetByClientMsgId(ctx, senderId, clientMsgId)
}

// GetConversation gets a conversation and its members, nil when absent
func (s *ChatStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, []string, error) {
	conv, err := s.repos.Conversation.GetById(ctx, id)
	if err != nil || conv == nil {
		return nil, nil, err
	}
	members, err := s.repos.Conversation.MemberIds(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, members, nil
}

// ListUserConversations gets a user's conversations and the members of each
func (s *ChatStore) ListUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, map[string][]string, error) {
	convs, err := s.repos.Conversation.ListForUser(ctx, userId)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Id)
	}
	members, err := s.repos.Conversation.MembersOf(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return convs, members, nil
}

// ListMessagePage gets a page of messages sent before the given time
func (s *ChatStore) ListMessagePage(ctx context.Context, conversationId string, before time.Time, limit int) ([]*entity.Message, error) {
	return s.repos.Message.GetLatestMessages(ctx, conversationId, before, limit)
}
