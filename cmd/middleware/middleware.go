package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"trekreg/internal/auth"
	"trekreg/internal/dto"
)

const (
	SessionKey   = "admin_session"
	APIKeyHeader = "x-api-key"
	APIKeyQuery  = "apiKey"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := zlog.Logger.Info()
		switch {
		case status >= 500:
			event = zlog.Logger.Error()
		case status >= 400:
			event = zlog.Logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request handled")
	}
}

// RequireAdmin lets a request through only with a valid, unrevoked session
// token in the Authorization header.
func RequireAdmin(m *auth.Manager) gin.HandlerFunc {
	return func(c *ginext.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			dto.UnauthorizedError(c, "Missing session token")
			return
		}
		claims, err := m.Validate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionRevoked), errors.Is(err, auth.ErrNotConfigured):
				dto.UnauthorizedError(c, "Session is not valid")
			default:
				zlog.Logger.Error().Err(err).Msg("failed to validate admin session")
				dto.InternalServerError(c)
			}
			return
		}
		c.Set(SessionKey, claims)
		c.Next()
	}
}

// RequireAPIKey checks the static admin key, given as the apiKey query
// parameter or, when allowHeader is set, the x-api-key header.
func RequireAPIKey(m *auth.Manager, allowHeader bool) gin.HandlerFunc {
	return func(c *ginext.Context) {
		key := c.Query(APIKeyQuery)
		if key == "" && allowHeader {
			key = c.GetHeader(APIKeyHeader)
		}
		if !m.CheckAPIKey(key) {
			zlog.Logger.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("rejected request with wrong api key")
			dto.UnauthorizedError(c, "Invalid API key")
			return
		}
		c.Next()
	}
}
