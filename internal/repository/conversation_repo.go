package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// ConversationRepo is the repository for conversations and their members
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts the conversation and its members
func (r *ConversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *entity.Conversation, memberIds []string) error {
	if err := tx.WithContext(ctx).Create(conv).Error; err != nil {
		return err
	}

	members := make([]*entity.ConversationMember, 0, len(memberIds))
	for _, userId := range memberIds {
		members = append(members, &entity.ConversationMember{ConversationId: conv.Id, UserId: userId})
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
}

// GetById gets a conversation, nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByPairKey gets the one-to-one conversation of a user pair, nil when absent
func (r *ConversationRepo) FindByPairKey(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	return r.first(r.db.WithContext(ctx).Where("pair_key = ?", pairKey))
}

func (r *ConversationRepo) first(q *gorm.DB) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := q.First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Update updates conversation columns
func (r *ConversationRepo) Update(ctx context.Context, tx *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return tx.WithContext(ctx).Model(&entity.Conversation{}).Where("id = ?", id).Updates(updates).Error
}

// ListForUser gets the conversations a user belongs to, most recent first
func (r *ConversationRepo) ListForUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Table("conversations c").
		Select("c.*").
		Joins("JOIN conversation_members m ON m.conversation_id = c.id").
		Where("m.user_id = ?", userId).
		Order("c.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListIdsForUser gets the ids of the conversations a user belongs to
func (r *ConversationRepo) ListIdsForUser(ctx context.Context, userId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Where("user_id = ?", userId).
		Order("conversation_id").
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MemberIds gets the members of a conversation
func (r *ConversationRepo) MemberIds(ctx context.Context, conversationId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Where("conversation_id = ?", conversationId).
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MembersOf gets the members of several conversations keyed by conversation id
func (r *ConversationRepo) MembersOf(ctx context.Context, conversationIds []string) (map[string][]string, error) {
	result := make(map[string][]string, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	var members []*entity.ConversationMember
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIds).
		Order("id").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		result[m.ConversationId] = append(result[m.ConversationId], m.UserId)
	}
	return result, nil
}

// IsMember checks if a user belongs to a conversation
func (r *ConversationRepo) IsMember(ctx context.Context, conversationId, userId string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
