package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/config"
	"github.com/Gopher0727/Tavern/internal/handler"
	"github.com/Gopher0727/Tavern/middleware/jwt"
	logger "github.com/Gopher0727/Tavern/middleware/log"
	"github.com/Gopher0727/Tavern/utils/ratelimit"
)

// TraceHeader carries the request trace id in and out.
const TraceHeader = "X-Trace-ID"

type MiddlewareManager struct {
	tokenManager *jwt.TokenManager
	rateLimiter  ratelimit.Limiter
	logger       *logger.Logger
	rateLimitCfg config.RateLimitConfig
}

// NewMiddlewareManager builds the shared middleware. A nil limiter disables
// rate limiting.
func NewMiddlewareManager(
	tokenManager *jwt.TokenManager,
	rateLimiter ratelimit.Limiter,
	log *logger.Logger,
	rateLimitCfg config.RateLimitConfig,
) *MiddlewareManager {
	return &MiddlewareManager{
		tokenManager: tokenManager,
		rateLimiter:  rateLimiter,
		logger:       log,
		rateLimitCfg: rateLimitCfg,
	}
}

func abortWith(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{
		"message": message,
		"code":    code,
		"success": false,
	})
}

// TraceID propagates the caller's X-Trace-ID or mints a new one.
func (m *MiddlewareManager) TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, logger.GetTraceID(ctx))
		c.Next()
	}
}

func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, http.StatusUnauthorized, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.tokenManager.ParseToken(parts[1])
		if err != nil {
			m.logger.WarnContext(c.Request.Context(), "token validation failed",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)

			message := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				message = "token has expired"
			case errors.Is(err, jwt.ErrTokenNotYetValid):
				message = "token not yet valid"
			}
			abortWith(c, http.StatusUnauthorized, message)
			return
		}

		c.Set(handler.MemberIDKey, claims.MemberID)
		c.Set(handler.EmailKey, claims.Email)
		c.Request = c.Request.WithContext(logger.WithMemberID(c.Request.Context(), claims.MemberID))

		c.Next()
	}
}

// RateLimit applies the rule configured for endpoint, keyed by member when
// authenticated and by client IP otherwise.
func (m *MiddlewareManager) RateLimit(endpoint ratelimit.Endpoint) gin.HandlerFunc {
	rule := ratelimit.RuleFor(endpoint, m.rateLimitCfg)

	return func(c *gin.Context) {
		if m.rateLimiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		var key string
		if memberID := c.GetString(handler.MemberIDKey); memberID != "" {
			key = fmt.Sprintf("member:%s:%s", memberID, endpoint)
		} else {
			key = fmt.Sprintf("ip:%s:%s", c.ClientIP(), endpoint)
		}

		allowed, err := m.rateLimiter.Allow(ctx, key, rule)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				zap.Error(err),
				zap.String("key", key),
				zap.String("endpoint", string(endpoint)),
			)
			abortWith(c, http.StatusInternalServerError, "rate limit check failed")
			return
		}

		if !allowed {
			remaining, _ := m.rateLimiter.GetRemaining(ctx, key, rule)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":     "rate limit exceeded",
				"code":        http.StatusTooManyRequests,
				"success":     false,
				"retry_after": int(rule.Window.Seconds()),
				"remaining":   remaining,
			})
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		ctx := c.Request.Context()
		if statusCode >= 500 {
			m.logger.ErrorContext(ctx, "server error", fields...)
		} else if statusCode >= 400 {
			m.logger.WarnContext(ctx, "client error", fields...)
		} else {
			m.logger.InfoContext(ctx, "request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+TraceHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", TraceHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.ErrorContext(c.Request.Context(), "panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				abortWith(c, http.StatusInternalServerError, "internal server error")
			}
		}()

		c.Next()
	}
}
