package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fruit-quality-eval/backend/internal/store"
)

const sessionContextKey = "auth.session"

// Middleware gates a route group behind a valid session token. The token is
// read from the Authorization header; websocket and download endpoints may
// pass it as a `token` query parameter instead, since browsers cannot attach
// headers there.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		session, err := m.Authenticate(token)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				logrus.WithError(err).Warn("authenticate session")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// SessionFrom returns the authenticated session attached by Middleware, or
// nil on unauthenticated requests.
func SessionFrom(c *gin.Context) *store.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*store.Session)
	return session
}

func extractToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return strings.TrimSpace(header[len("bearer "):])
		}
		return header
	}
	return strings.TrimSpace(c.Query("token"))
}
