package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/pkg/errcode"
)

func TestListingService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newMemListings()
	svc := NewListingService(store)

	_, err := svc.CreateListing(ctx, "seller", &CreateListingRequest{BusinessName: "  "})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	listing, err := svc.CreateListing(ctx, "seller", &CreateListingRequest{BusinessName: " Corner Bakery ", CoverUrl: "https://img/1.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, listing.Id)
	assert.Equal(t, "Corner Bakery", listing.BusinessName)

	require.NoError(t, store.SetReviewCode(ctx, listing.Id, "REVIEW-ABCDEFGHIJ"))

	own, err := svc.GetListing(ctx, "seller", listing.Id)
	require.NoError(t, err)
	assert.Equal(t, "REVIEW-ABCDEFGHIJ", own.ReviewCode)

	other, err := svc.GetListing(ctx, "buyer", listing.Id)
	require.NoError(t, err)
	assert.Empty(t, other.ReviewCode)

	_, err = svc.GetListing(ctx, "buyer", "missing")
	assert.ErrorIs(t, err, errcode.ErrListingNotFound)
}
