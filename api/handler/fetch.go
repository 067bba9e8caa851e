package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/cache"
	"github.com/specterhq/specter/content"
	"github.com/specterhq/specter/fetcher"
	"github.com/specterhq/specter/models"
)

// PageFetcher is the fetching capability the handlers depend on. Satisfied
// by *fetcher.Fetcher; narrowed to an interface so tests can fake it.
type PageFetcher interface {
	Do(ctx context.Context, req *fetcher.Request) (*fetcher.Result, error)
	Stats() models.SessionStats
}

// Fetch returns a handler for POST /api/v1/fetch.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults, pre-validate the selector.
//  2. Cache lookup (only when the request opts in via max_age).
//  3. Fetcher.Do → rendered HTML          (records fetch_ms)
//  4. Shaper.Shape → html/markdown/text   (records shaping_ms)
//  5. Merge metadata, fill timing, respond.
func Fetch(pf PageFetcher, sh *content.Shaper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		if err := content.ValidateSelector(req.CSSSelector); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(req.URL, req.OutputFormat, req.ExtractMode, req.CSSSelector)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Fetch ────────────────────────────────────────────────
		fetchStart := time.Now()
		result, err := pf.Do(c.Request.Context(), &fetcher.Request{
			URL:               req.URL,
			Proxy:             req.Proxy,
			CaptchaAPIKey:     req.CaptchaAPIKey,
			Mode:              req.FetchMode,
			WaitSelector:      req.WaitSelector,
			NavigationTimeout: time.Duration(req.Timeout) * time.Second,
			BlockAds:          req.BlockAds,
		})
		fetchMs := time.Since(fetchStart).Milliseconds()

		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
				FetchMs: fetchMs,
			})
			return
		}

		// ── 4. Shape output ─────────────────────────────────────────
		shapeStart := time.Now()
		shaped, meta, err := sh.Shape(result.HTML, req.URL, req.OutputFormat, req.ExtractMode, req.CSSSelector)
		shapingMs := time.Since(shapeStart).Milliseconds()

		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs:   time.Since(totalStart).Milliseconds(),
				FetchMs:   fetchMs,
				ShapingMs: shapingMs,
			})
			return
		}

		// ── 5. Metadata fallback + respond ──────────────────────────
		if meta.Title == "" {
			meta.Title = result.Title
		}

		resp := &models.FetchResponse{
			Success:    true,
			StatusCode: result.StatusCode,
			FinalURL:   result.FinalURL,
			Content:    shaped,
			Metadata:   meta,
			EngineUsed: result.EngineUsed,
			Timing: models.TimingInfo{
				TotalMs:   time.Since(totalStart).Milliseconds(),
				FetchMs:   fetchMs,
				ShapingMs: shapingMs,
			},
		}

		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a FetchError to the right HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	fetchErr, ok := err.(*models.FetchError)
	if !ok {
		fetchErr = models.NewFetchError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(fetchErr), models.FetchResponse{
		Success: false,
		Error:   fetchErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.FetchError) int {
	switch e.Code {
	case models.ErrCodeNavTimeout, models.ErrCodeReadiness:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavFailed, models.ErrCodeProxyAuth, models.ErrCodeCaptcha:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
