package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/models"
)

// keyring is the set of accepted API keys.
type keyring map[string]struct{}

func newKeyring(keys []string) keyring {
	kr := make(keyring, len(keys))
	for _, k := range keys {
		if k != "" {
			kr[k] = struct{}{}
		}
	}
	return kr
}

func (kr keyring) accepts(key string) bool {
	_, ok := kr[key]
	return ok
}

// Auth returns API-key authentication middleware. Keys are read from the
// X-API-Key header or an Authorization bearer token. An empty key list
// disables authentication entirely.
//
// The validated key is stored in the context under "api_key" so the rate
// limiter can use it as the caller identity.
func Auth(apiKeys []string) gin.HandlerFunc {
	kr := newKeyring(apiKeys)
	if len(kr) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := bearerOrHeaderKey(c)
		switch {
		case key == "":
			abortUnauthorized(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
		case !kr.accepts(key):
			abortUnauthorized(c, "invalid API key")
		default:
			c.Set("api_key", key)
			c.Next()
		}
	}
}

func bearerOrHeaderKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	const prefix = "Bearer "
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.FetchResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}
