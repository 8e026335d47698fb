package middleware

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/internal/session"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

const (
	ctxIdentity = "identity"
	ctxToken    = "token"
	ctxSession  = "sync_session"
)

// Auth 校验 Bearer 令牌，解析身份并挂载该用户的同步状态。
// 鉴权失败等价于强制登出：401 由前端重定向回登录页。
func Auth(provider session.Provider, hub *service.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		ident, err := provider.GetSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, errs.ErrAuth) {
				response.Unauthorized(c, "session invalid or expired")
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}
		c.Set(ctxIdentity, *ident)
		c.Set(ctxToken, token)
		c.Set(ctxSession, hub.Attach(c.Request.Context(), *ident))
		c.Next()
	}
}

// MustIdentity 取当前请求身份（Auth 之后调用）
func MustIdentity(c *gin.Context) session.Identity {
	return c.MustGet(ctxIdentity).(session.Identity)
}

// Token 取当前请求的原始令牌
func Token(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// Session 取当前请求的同步状态
func Session(c *gin.Context) *service.Session {
	return c.MustGet(ctxSession).(*service.Session)
}

// RateLimit 按客户端 IP 的令牌桶限流
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		lim, ok := limiters[ip]
		if !ok {
			lim = rate.NewLimiter(rps, burst)
			limiters[ip] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{
				Code: http.StatusTooManyRequests, Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
