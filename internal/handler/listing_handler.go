package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/bazaar/internal/middleware"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/response"
)

// ListingHandler handles listing requests
type ListingHandler struct {
	listingService *service.ListingService
}

// NewListingHandler creates a new ListingHandler
func NewListingHandler(listingService *service.ListingService) *ListingHandler {
	return &ListingHandler{listingService: listingService}
}

// CreateListing handles create listing request
func (h *ListingHandler) CreateListing(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.CreateListingRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	listing, err := h.listingService.CreateListing(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, listing)
}

// GetListing handles get listing request
func (h *ListingHandler) GetListing(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	listingId := c.Param("listing_id")
	if listingId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	listing, err := h.listingService.GetListing(ctx, userId, listingId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, listing)
}
