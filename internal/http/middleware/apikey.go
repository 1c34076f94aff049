package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

const DefaultAPIKeyName = "api_key"

var errBadCredentials = errors.New("Could not validate credentials")

type APIKeyMiddleware struct {
	log  *logger.Logger
	key  string
	name string
}

// NewAPIKeyMiddleware checks requests against key. An empty key disables
// the check.
func NewAPIKeyMiddleware(log *logger.Logger, key, name string) *APIKeyMiddleware {
	if strings.TrimSpace(name) == "" {
		name = DefaultAPIKeyName
	}
	return &APIKeyMiddleware{log: log.With("Middleware", "APIKeyMiddleware"), key: key, name: name}
}

func (m *APIKeyMiddleware) RequireKey() gin.HandlerFunc {
	if m == nil || m.key == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		for _, candidate := range m.candidates(c) {
			if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(m.key)) == 1 {
				c.Next()
				return
			}
		}
		m.log.Debug("rejected api key", "path", c.Request.URL.Path)
		response.RespondError(c, http.StatusForbidden, "forbidden", errBadCredentials)
		c.Abort()
	}
}

// candidates lists the key as given in the query string, a header and a
// cookie, in that order.
func (m *APIKeyMiddleware) candidates(c *gin.Context) []string {
	out := []string{c.Query(m.name), c.GetHeader(m.name)}
	if cookie, err := c.Cookie(m.name); err == nil {
		out = append(out, cookie)
	}
	return out
}
