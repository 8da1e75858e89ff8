package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/bazaar/internal/middleware"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/response"
)

// SessionKicker closes live connections of a user
type SessionKicker interface {
	KickPlatform(userId string, platformId int) int
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *service.AuthService
	kicker      SessionKicker
}

// NewAuthHandler creates a new AuthHandler. kicker may be nil.
func NewAuthHandler(authService *service.AuthService, kicker SessionKicker) *AuthHandler {
	return &AuthHandler{authService: authService, kicker: kicker}
}

// Register handles user registration
func (h *AuthHandler) Register(ctx context.Context, c *app.RequestContext) {
	var req service.RegisterRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	userInfo, err := h.authService.Register(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, userInfo)
}

// Login handles user login
func (h *AuthHandler) Login(ctx context.Context, c *app.RequestContext) {
	var req service.LoginRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	resp, err := h.authService.Login(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, resp)
}

// Logout revokes the token the request was authenticated with and closes
// the connections opened on the same platform
func (h *AuthHandler) Logout(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	platformId := middleware.GetPlatformId(c)
	if err := h.authService.Logout(ctx, userId, platformId, middleware.GetToken(c)); err != nil {
		response.Error(ctx, c, err)
		return
	}
	if h.kicker != nil {
		h.kicker.KickPlatform(userId, platformId)
	}

	response.Success(ctx, c, nil)
}
