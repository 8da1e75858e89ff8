package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/middleware"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/response"
)

// PresenceChecker reports whether a user has a live connection
type PresenceChecker interface {
	IsOnline(ctx context.Context, userId string) bool
}

// UserHandler handles user-related requests
type UserHandler struct {
	userService *service.UserService
	presence    PresenceChecker
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *service.UserService, presence PresenceChecker) *UserHandler {
	return &UserHandler{userService: userService, presence: presence}
}

// UserInfoResp is a profile with its presence
type UserInfoResp struct {
	*entity.UserInfo
	Online bool `json:"online"`
}

// GetUserInfo handles get user info request
func (h *UserHandler) GetUserInfo(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	userInfo, err := h.userService.GetUserInfo(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, userInfo)
}

// GetUserInfoById handles get user info by Id request
func (h *UserHandler) GetUserInfoById(ctx context.Context, c *app.RequestContext) {
	userId := c.Param("user_id")
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	userInfo, err := h.userService.GetUserInfo(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &UserInfoResp{
		UserInfo: userInfo,
		Online:   h.presence != nil && h.presence.IsOnline(ctx, userId),
	})
}

// GetUsersInfoRequest lists the users to look up
type GetUsersInfoRequest struct {
	UserIds []string `json:"user_ids"`
}

// GetUsersInfo handles batch user info request
func (h *UserHandler) GetUsersInfo(ctx context.Context, c *app.RequestContext) {
	var req GetUsersInfoRequest
	if err := c.BindAndValidate(&req); err != nil || len(req.UserIds) == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	users, err := h.userService.GetUserInfos(ctx, req.UserIds)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, users)
}

// UpdateUserInfo handles update user info request
func (h *UserHandler) UpdateUserInfo(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.UpdateUserRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	userInfo, err := h.userService.UpdateUserInfo(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, userInfo)
}
