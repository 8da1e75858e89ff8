package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

func TestGenerateReviewCode(t *testing.T) {
	format := regexp.MustCompile(`^REVIEW-[A-Z0-9]{10}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateReviewCode()
		require.NoError(t, err)
		assert.Regexp(t, format, code)
		assert.True(t, IsReviewCodeFormat(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestIsReviewCodeFormat(t *testing.T) {
	assert.True(t, IsReviewCodeFormat("REVIEW-ABC123XYZ0"))
	assert.False(t, IsReviewCodeFormat("REVIEW-abc123xyz0"))
	assert.False(t, IsReviewCodeFormat("REVIEW-ABC"))
	assert.False(t, IsReviewCodeFormat("CODE-ABC123XYZ0"))
	assert.False(t, IsReviewCodeFormat(""))
}

func TestReviewService_Flow(t *testing.T) {
	store := newMemListings(&entity.Listing{Id: "l1", SellerId: "seller"})
	svc := NewReviewService(store)
	ctx := context.Background()

	_, err := svc.AttachCode(ctx, "buyer", "l1")
	assert.ErrorIs(t, err, errcode.ErrNotListingSeller)
	_, err = svc.AttachCode(ctx, "seller", "missing")
	assert.ErrorIs(t, err, errcode.ErrListingNotFound)

	assert.ErrorIs(t, svc.VerifyCode(ctx, "buyer", "l1", "REVIEW-ABC123XYZ0"), errcode.ErrReviewCodeNotFound)

	code, err := svc.AttachCode(ctx, "seller", "l1")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.VerifyCode(ctx, "buyer", "l1", "nonsense"), errcode.ErrReviewCodeInvalid)
	assert.ErrorIs(t, svc.VerifyCode(ctx, "buyer", "l1", "REVIEW-0000000000"), errcode.ErrReviewCodeInvalid)
	require.NoError(t, svc.VerifyCode(ctx, "buyer", "l1", code))

	require.NoError(t, svc.RedeemCode(ctx, "buyer", "l1", code))
	assert.ErrorIs(t, svc.RedeemCode(ctx, "buyer", "l1", code), errcode.ErrReviewCodeUsed)

	// another buyer may still use it
	require.NoError(t, svc.RedeemCode(ctx, "buyer2", "l1", code))
}
