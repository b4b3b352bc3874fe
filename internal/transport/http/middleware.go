package http

import (
	"net/http"
	"strings"
	"time"

	"quiz-session-service/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticate resolves the caller from a bearer token and binds it to the request context.
// Browsers cannot set headers on WebSocket upgrades, so access_token is accepted as a query parameter.
func Authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "authorization header format must be Bearer {token}", Kind: "unauthenticated"})
				return
			}
			token = parts[1]
		} else {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "authentication required", Kind: "unauthenticated"})
			return
		}

		id, err := verifier.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid or expired token", Kind: "unauthenticated"})
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
