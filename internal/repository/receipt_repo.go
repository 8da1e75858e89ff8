package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// ReceiptRepo is the repository for read receipts
type ReceiptRepo struct {
	db *gorm.DB
}

// NewReceiptRepo creates a new ReceiptRepo
func NewReceiptRepo(db *gorm.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// Get gets the receipt of a user in a conversation, nil when absent
func (r *ReceiptRepo) Get(ctx context.Context, conversationId, userId string) (*entity.ReadReceipt, error) {
	var receipt entity.ReadReceipt
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

// Upsert sets last_read_at to the database clock and merges extra into the stored extra object
func (r *ReceiptRepo) Upsert(ctx context.Context, conversationId, userId string, extra map[string]any) error {
	payload, err := encodeExtra(extra)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&entity.ReadReceipt{}).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_read_at": gorm.Expr("NOW(3)"),
				"extra":        gorm.Expr("JSON_MERGE_PATCH(COALESCE(extra, JSON_OBJECT()), CAST(? AS JSON))", payload),
				"updated_at":   entity.NowUnixMilli(),
			}),
		}).
		Create(map[string]any{
			"conversation_id": conversationId,
			"user_id":         userId,
			"last_read_at":    gorm.Expr("NOW(3)"),
			"extra":           payload,
			"updated_at":      entity.NowUnixMilli(),
		}).Error
}

func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encode receipt extra: %w", err)
	}
	return string(b), nil
}
