package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/esfera-conectada/config"
	"github.com/d60-Lab/esfera-conectada/internal/api/handler"
	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/internal/session"
)

// NewRouter 装配全部路由。未登录仅能访问注册与登录。
func NewRouter(cfg *config.Config, provider session.Provider, hub *service.Hub, h *handler.Handler) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(otelgin.Middleware("esfera-conectada"))
	r.Use(middleware.RateLimit(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst))

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	authed := v1.Group("")
	authed.Use(middleware.Auth(provider, hub))
	{
		authed.POST("/auth/logout", h.Logout)
		authed.POST("/auth/password", h.ChangePassword)

		authed.GET("/feed", h.Feed)
		authed.GET("/feed/pending", h.Pending)

		authed.GET("/posts", h.Feed)
		authed.POST("/posts", h.CreatePost)
		authed.GET("/posts/:id", h.GetPost)
		authed.DELETE("/posts/:id", h.DeletePost)
		authed.POST("/posts/:id/comments", h.Comment)
		authed.POST("/posts/:id/like", h.Like)
		authed.DELETE("/posts/:id/like", h.Unlike)

		authed.GET("/profiles/:id", h.GetProfile)
		authed.PUT("/profiles/me", h.UpdateProfile)

		authed.POST("/profiles/:id/subscribe", h.Subscribe)
		authed.DELETE("/profiles/:id/subscribe", h.Unsubscribe)
		authed.GET("/profiles/:id/subscribers", h.ListSubscribers)
		authed.POST("/profiles/:id/block", h.Block)
		authed.DELETE("/profiles/:id/block", h.Unblock)

		authed.GET("/chat/:peer", h.Conversation)
		authed.POST("/chat/:peer", h.SendMessage)

		authed.GET("/notifications", h.Notifications)
		authed.GET("/notifications/live", h.LiveNotifications)
		authed.POST("/notifications/:id/read", h.MarkNotificationRead)
		authed.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	}

	return r
}
