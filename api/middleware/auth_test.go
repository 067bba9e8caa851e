package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(apiKeys []string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(apiKeys))
	r.GET("/probe", func(c *gin.Context) {
		key, _ := c.Get("api_key")
		keyStr, _ := key.(string)
		c.JSON(http.StatusOK, gin.H{"key": keyStr})
	})
	return r
}

func doGet(t *testing.T, r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_NoKeysConfiguredIsOpen(t *testing.T) {
	r := authRouter(nil)
	if w := doGet(t, r, nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no keys are configured", w.Code)
	}
}

func TestAuth_MissingKey(t *testing.T) {
	r := authRouter([]string{"valid-key"})
	if w := doGet(t, r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for missing key", w.Code)
	}
}

func TestAuth_InvalidKey(t *testing.T) {
	r := authRouter([]string{"valid-key"})
	w := doGet(t, r, map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for invalid key", w.Code)
	}
}

func TestAuth_ValidHeaderKey(t *testing.T) {
	r := authRouter([]string{"valid-key"})
	w := doGet(t, r, map[string]string{"X-API-Key": "valid-key"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for valid X-API-Key", w.Code)
	}
}

func TestAuth_ValidBearerKey(t *testing.T) {
	r := authRouter([]string{"valid-key"})
	w := doGet(t, r, map[string]string{"Authorization": "Bearer valid-key"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for valid bearer token", w.Code)
	}
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests = %v, first two should pass", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", statuses[2])
	}
}

func TestRateLimit_SeparateIdentities(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("first request from %s = %d, want 200", addr, w.Code)
		}
	}
}
