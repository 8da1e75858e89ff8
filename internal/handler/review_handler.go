package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/bazaar/internal/middleware"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/response"
)

// ReviewHandler handles listing review code requests
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// AttachCodeRequest names the listing to issue a code for
type AttachCodeRequest struct {
	ListingId string `json:"listing_id"`
}

// ReviewCodeRequest carries a code presented by a buyer
type ReviewCodeRequest struct {
	ListingId string `json:"listing_id"`
	Code      string `json:"code"`
}

// AttachCode handles issue review code request, seller only
func (h *ReviewHandler) AttachCode(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req AttachCodeRequest
	if err := c.BindAndValidate(&req); err != nil || req.ListingId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	code, err := h.reviewService.AttachCode(ctx, userId, req.ListingId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]string{
		"listing_id":  req.ListingId,
		"review_code": code,
	})
}

// VerifyCode handles verify review code request
func (h *ReviewHandler) VerifyCode(ctx context.Context, c *app.RequestContext) {
	userId, req, ok := h.bindCode(ctx, c)
	if !ok {
		return
	}

	if err := h.reviewService.VerifyCode(ctx, userId, req.ListingId, req.Code); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]bool{"valid": true})
}

// RedeemCode handles redeem review code request
func (h *ReviewHandler) RedeemCode(ctx context.Context, c *app.RequestContext) {
	userId, req, ok := h.bindCode(ctx, c)
	if !ok {
		return
	}

	if err := h.reviewService.RedeemCode(ctx, userId, req.ListingId, req.Code); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

func (h *ReviewHandler) bindCode(ctx context.Context, c *app.RequestContext) (string, *ReviewCodeRequest, bool) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return "", nil, false
	}

	var req ReviewCodeRequest
	if err := c.BindAndValidate(&req); err != nil || req.ListingId == "" || req.Code == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return "", nil, false
	}
	return userId, &req, true
}
