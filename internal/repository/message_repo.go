package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a message stamped by the database clock and loads the stamp into msg
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	err := tx.WithContext(ctx).Model(&entity.Message{}).Create(map[string]any{
		"id":              msg.Id,
		"conversation_id": msg.ConversationId,
		"sender_id":       msg.SenderId,
		"msg_type":        msg.MsgType,
		"content":         msg.Content,
		"client_msg_id":   msg.ClientMsgId,
		"sent_at":         gorm.Expr("NOW(3)"),
	}).Error
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("id = ?", msg.Id).First(msg).Error
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListStamps gets sender and send time of every message in a conversation
func (r *MessageRepo) ListStamps(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Select("sender_id", "sent_at").
		Where("conversation_id = ?", conversationId).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetLatestMessages gets up to limit messages sent before the given time, oldest first.
// A zero before means now.
func (r *MessageRepo) GetLatestMessages(ctx context.Context, conversationId string, before time.Time, limit int) ([]*entity.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if !before.IsZero() {
		q = q.Where("sent_at < ?", before)
	}

	var messages []*entity.Message
	if err := q.Order("sent_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
