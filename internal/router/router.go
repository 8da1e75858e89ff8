package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/bazaar/internal/config"
	"github.com/mbeoliero/bazaar/internal/gateway"
	"github.com/mbeoliero/bazaar/internal/handler"
	"github.com/mbeoliero/bazaar/internal/middleware"
)

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, auth middleware.TokenValidator, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]any{
			"status":       "ok",
			"online_users": wsServer.GetOnlineUserCount(),
			"online_conns": wsServer.GetOnlineConnCount(),
		})
	})

	authGroup := h.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/logout", middleware.JWTAuth(auth), handlers.Auth.Logout)
	}

	userGroup := h.Group("/user", middleware.JWTAuth(auth))
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
		userGroup.POST("/infos", handlers.User.GetUsersInfo)
		userGroup.PUT("/update", handlers.User.UpdateUserInfo)
	}

	listingGroup := h.Group("/listing", middleware.JWTAuth(auth))
	{
		listingGroup.POST("/create", handlers.Listing.CreateListing)
		listingGroup.GET("/:listing_id", handlers.Listing.GetListing)
		listingGroup.POST("/review_code", handlers.Review.AttachCode)
		listingGroup.POST("/review_code/verify", handlers.Review.VerifyCode)
		listingGroup.POST("/review_code/redeem", handlers.Review.RedeemCode)
	}

	convGroup := h.Group("/conversation", middleware.JWTAuth(auth))
	{
		convGroup.POST("/start", handlers.Chat.StartChat)
		convGroup.GET("/list", handlers.Chat.GetConversationList)
		convGroup.POST("/mark_read", handlers.Unread.MarkRead)
	}

	msgGroup := h.Group("/msg", middleware.JWTAuth(auth))
	{
		msgGroup.POST("/send", handlers.Chat.SendMessage)
		msgGroup.GET("/list", handlers.Chat.GetMessages)
	}

	unreadGroup := h.Group("/unread", middleware.JWTAuth(auth))
	{
		unreadGroup.GET("/count", handlers.Unread.GetUnreadCount)
		unreadGroup.GET("/summary", handlers.Unread.GetUnreadSummary)
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin lets non-browser clients through and holds browsers to the allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(origin, allowedOrigins)
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Listing *handler.ListingHandler
	Review  *handler.ReviewHandler
	Chat    *handler.ChatHandler
	Unread  *handler.UnreadHandler
}
