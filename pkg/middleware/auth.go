package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/response"
)

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	CodeUnauthorized = "UNAUTHORIZED"
)

// AuthMiddleware guards operator routes with a static bearer token.
type AuthMiddleware struct {
	token []byte
}

// NewAuthMiddleware creates a new auth middleware. An empty token disables
// the check.
func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: []byte(token)}
}

// Enabled reports whether a token is configured.
func (m *AuthMiddleware) Enabled() bool {
	return m != nil && len(m.token) > 0
}

// RequireAuth returns a Gin middleware that validates the bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Error(c, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization format")
			return
		}

		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if subtle.ConstantTimeCompare([]byte(token), m.token) != 1 {
			l := log.Ctx(c.Request.Context())
			l.Warn().Msg("rejected admin request with bad token")
			response.Error(c, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
			return
		}

		c.Next()
	}
}
