package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/idgen"
)

// ListingStore persists listings
type ListingStore interface {
	Create(ctx context.Context, listing *entity.Listing) error
	GetById(ctx context.Context, id string) (*entity.Listing, error)
}

// ListingService manages the listings conversations and review codes refer to
type ListingService struct {
	store ListingStore
}

// NewListingService creates a new ListingService
func NewListingService(store ListingStore) *ListingService {
	return &ListingService{store: store}
}

// CreateListingRequest represents create listing request
type CreateListingRequest struct {
	BusinessName string `json:"business_name"`
	CoverUrl     string `json:"cover_url,omitempty"`
}

// CreateListing creates a listing owned by sellerId
func (s *ListingService) CreateListing(ctx context.Context, sellerId string, req *CreateListingRequest) (*entity.Listing, error) {
	name := strings.TrimSpace(req.BusinessName)
	if sellerId == "" || name == "" {
		return nil, errcode.ErrInvalidParam
	}

	id, err := idgen.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	listing := &entity.Listing{
		Id:           id,
		SellerId:     sellerId,
		BusinessName: name,
		CoverUrl:     req.CoverUrl,
	}
	if err := s.store.Create(ctx, listing); err != nil {
		log.CtxError(ctx, "create listing failed: seller_id=%s, error=%v", sellerId, err)
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	return listing, nil
}

// GetListing returns a listing. The review code is only shown to its seller.
func (s *ListingService) GetListing(ctx context.Context, userId, listingId string) (*entity.Listing, error) {
	listing, err := s.store.GetById(ctx, listingId)
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	if listing == nil {
		return nil, errcode.ErrListingNotFound
	}
	if listing.SellerId != userId {
		listing.ReviewCode = ""
	}
	return listing, nil
}
