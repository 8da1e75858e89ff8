package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

// ReviewCodeStore keeps listings and the codes redeemed against them
type ReviewCodeStore interface {
	GetById(ctx context.Context, id string) (*entity.Listing, error)
	SetReviewCode(ctx context.Context, id, code string) error
	IsCodeUsed(ctx context.Context, listingId, code, userId string) (bool, error)
	// MarkCodeUsed returns entity.ErrDuplicate when already redeemed
	MarkCodeUsed(ctx context.Context, listingId, code, userId string) error
}

// ReviewService issues and redeems the codes buyers need to review a listing
type ReviewService struct {
	store ReviewCodeStore
}

// NewReviewService creates a new ReviewService
func NewReviewService(store ReviewCodeStore) *ReviewService {
	return &ReviewService{store: store}
}

// GenerateReviewCode returns REVIEW- followed by random characters from [A-Z0-9]
func GenerateReviewCode() (string, error) {
	var sb strings.Builder
	sb.Grow(len(constant.ReviewCodePrefix) + constant.ReviewCodeLength)
	sb.WriteString(constant.ReviewCodePrefix)

	alphabetLen := big.NewInt(int64(len(constant.ReviewCodeAlphabet)))
	for range constant.ReviewCodeLength {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(constant.ReviewCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// IsReviewCodeFormat checks the shape of a code without looking it up
func IsReviewCodeFormat(code string) bool {
	rest, ok := strings.CutPrefix(code, constant.ReviewCodePrefix)
	if !ok || len(rest) != constant.ReviewCodeLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(constant.ReviewCodeAlphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}

// AttachCode gives a listing a fresh review code. Only its seller may do so.
func (s *ReviewService) AttachCode(ctx context.Context, sellerId, listingId string) (string, error) {
	listing, err := s.loadListing(ctx, listingId)
	if err != nil {
		return "", err
	}
	if listing.SellerId != sellerId {
		return "", errcode.ErrNotListingSeller
	}

	code, err := GenerateReviewCode()
	if err != nil {
		log.CtxError(ctx, "generate review code failed: %v", err)
		return "", errcode.ErrInternalServer
	}
	if err := s.store.SetReviewCode(ctx, listingId, code); err != nil {
		log.CtxError(ctx, "set review code failed: listing_id=%s, error=%v", listingId, err)
		return "", errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "review code attached: listing_id=%s, seller_id=%s", listingId, sellerId)
	return code, nil
}

// VerifyCode checks that code is the listing's current code and userId has not redeemed it
func (s *ReviewService) VerifyCode(ctx context.Context, userId, listingId, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !IsReviewCodeFormat(code) {
		return errcode.ErrReviewCodeInvalid
	}

	listing, err := s.loadListing(ctx, listingId)
	if err != nil {
		return err
	}
	if listing.ReviewCode == "" {
		return errcode.ErrReviewCodeNotFound
	}
	if listing.ReviewCode != code {
		return errcode.ErrReviewCodeInvalid
	}

	used, err := s.store.IsCodeUsed(ctx, listingId, code, userId)
	if err != nil {
		log.CtxError(ctx, "check review code failed: listing_id=%s, error=%v", listingId, err)
		return errcode.ErrInternalServer
	}
	if used {
		return errcode.ErrReviewCodeUsed
	}
	return nil
}

// RedeemCode verifies code and records that userId used it
func (s *ReviewService) RedeemCode(ctx context.Context, userId, listingId, code string) error {
	if err := s.VerifyCode(ctx, userId, listingId, code); err != nil {
		return err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	err := s.store.MarkCodeUsed(ctx, listingId, code, userId)
	if errors.Is(err, entity.ErrDuplicate) {
		return errcode.ErrReviewCodeUsed
	}
	if err != nil {
		log.CtxError(ctx, "mark review code used failed: listing_id=%s, error=%v", listingId, err)
		return errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "review code redeemed: listing_id=%s, user_id=%s", listingId, userId)
	return nil
}

func (s *ReviewService) loadListing(ctx context.Context, listingId string) (*entity.Listing, error) {
	if listingId == "" {
		return nil, errcode.ErrInvalidParam
	}
	listing, err := s.store.GetById(ctx, listingId)
	if err != nil {
		log.CtxError(ctx, "get listing failed: listing_id=%s, error=%v", listingId, err)
		return nil, errcode.ErrInternalServer
	}
	if listing == nil {
		return nil, errcode.ErrListingNotFound
	}
	return listing, nil
}
