package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// ListingRepo is the repository for listings and redeemed review codes
type ListingRepo struct {
	db *gorm.DB
}

// NewListingRepo creates a new ListingRepo
func NewListingRepo(db *gorm.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

// Create creates a new listing
func (r *ListingRepo) Create(ctx context.Context, listing *entity.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

// GetById gets a listing, nil when absent
func (r *ListingRepo) GetById(ctx context.Context, id string) (*entity.Listing, error) {
	var listing entity.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

// SetReviewCode replaces the review code of a listing
func (r *ListingRepo) SetReviewCode(ctx context.Context, id, code string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Listing{}).
		Where("id = ?", id).
		Update("review_code", code).Error
}

// IsCodeUsed checks if a user already redeemed a code of a listing
func (r *ListingRepo) IsCodeUsed(ctx context.Context, listingId, code, userId string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.UsedReviewCode{}).
		Where("listing_id = ? AND code = ? AND user_id = ?", listingId, code, userId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkCodeUsed records a redemption, entity.ErrDuplicate when it already exists
func (r *ListingRepo) MarkCodeUsed(ctx context.Context, listingId, code, userId string) error {
	err := r.db.WithContext(ctx).Create(&entity.UsedReviewCode{
		ListingId: listingId,
		Code:      code,
		UserId:    userId,
		UsedAt:    time.Now().UTC(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entity.ErrDuplicate
	}
	return err
}
