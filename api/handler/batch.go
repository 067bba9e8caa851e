package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/content"
	"github.com/specterhq/specter/fetcher"
	"github.com/specterhq/specter/models"
	"github.com/specterhq/specter/webhook"
)

// batchJob guards one job's mutable state. runBatch writes results and
// status while GetBatch serves polls, so all access goes through the mutex
// and readers leave with a snapshot.
type batchJob struct {
	mu        sync.Mutex
	createdAt int64 // set once before publishing, never written again
	job       models.BatchJob
}

// snapshot copies the job state under the lock. The results slice is
// detached so later writes cannot show up in an already-marshalled response.
func (b *batchJob) snapshot(withResults bool) models.BatchStatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp := models.BatchStatusResponse{
		ID:        b.job.ID,
		Status:    b.job.Status,
		Completed: b.job.Completed,
		Total:     b.job.Total,
	}
	if withResults {
		resp.Results = make([]*models.FetchResponse, len(b.job.Results))
		copy(resp.Results, b.job.Results)
	}
	return resp
}

// batchStore holds all in-flight and completed batch jobs.
var batchStore sync.Map

func init() {
	// Expire batch jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			batchStore.Range(func(key, value any) bool {
				if value.(*batchJob).createdAt < cutoff {
					batchStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostBatch returns a handler for POST /api/v1/batch/fetch.
// It validates the request, creates a batch job, and fetches each URL
// concurrently in the background.
func PostBatch(pf PageFetcher, sh *content.Shaper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		jobID := "batch-" + randomID()
		b := &batchJob{
			createdAt: time.Now().Unix(),
			job: models.BatchJob{
				ID:      jobID,
				Status:  "processing",
				Total:   len(req.URLs),
				Results: make([]*models.FetchResponse, len(req.URLs)),
			},
		}
		batchStore.Store(jobID, b)

		go runBatch(pf, sh, b, req)

		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     jobID,
			Status: "processing",
			Total:  len(req.URLs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := batchStore.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}

		c.JSON(http.StatusOK, val.(*batchJob).snapshot(true))
	}
}

// runBatch fetches all URLs in a job, concurrency-limited by the session cap
// so the batch cannot starve interactive requests of browser processes.
func runBatch(pf PageFetcher, sh *content.Shaper, b *batchJob, req models.BatchRequest) {
	maxConcurrent := pf.Stats().MaxSessions
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup

	opts := req.Options
	format := opts.OutputFormat
	if format == "" {
		format = content.FormatHTML
	}
	mode := opts.ExtractMode
	if mode == "" {
		mode = content.ModeRaw
	}

	for i, target := range req.URLs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, url string) {
			defer wg.Done()
			defer func() { <-sem }()

			resp := fetchOne(pf, sh, url, opts, format, mode)

			b.mu.Lock()
			b.job.Results[idx] = resp
			b.job.Completed++
			b.mu.Unlock()
		}(i, target)
	}

	wg.Wait()

	b.mu.Lock()
	succeeded := 0
	for _, r := range b.job.Results {
		if r != nil && r.Success {
			succeeded++
		}
	}
	switch succeeded {
	case b.job.Total:
		b.job.Status = "completed"
	case 0:
		b.job.Status = "failed"
	default:
		b.job.Status = "partial"
	}
	b.mu.Unlock()

	if req.WebhookURL != "" {
		webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      "batch.completed",
			JobID:     b.job.ID,
			Timestamp: time.Now().Unix(),
			Data:      b.snapshot(false),
		})
	}
}

// fetchOne runs a single batch item end to end: fetch, shape, respond.
func fetchOne(pf PageFetcher, sh *content.Shaper, url string, opts models.BatchOptions, format, mode string) *models.FetchResponse {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := pf.Do(ctx, &fetcher.Request{
		URL:               url,
		Proxy:             opts.Proxy,
		CaptchaAPIKey:     opts.CaptchaAPIKey,
		Mode:              opts.FetchMode,
		NavigationTimeout: time.Duration(opts.Timeout) * time.Second,
		BlockAds:          opts.BlockAds,
	})
	if err != nil {
		fetchErr, ok := err.(*models.FetchError)
		if !ok {
			fetchErr = models.NewFetchError(models.ErrCodeInternal, err.Error(), err)
		}
		return &models.FetchResponse{
			Success: false,
			Error:   fetchErr.ToDetail(),
			Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		}
	}

	shaped, meta, err := sh.Shape(result.HTML, url, format, mode, "")
	if err != nil {
		fetchErr, ok := err.(*models.FetchError)
		if !ok {
			fetchErr = models.NewFetchError(models.ErrCodeExtraction, err.Error(), err)
		}
		return &models.FetchResponse{
			Success: false,
			Error:   fetchErr.ToDetail(),
			Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		}
	}
	if meta.Title == "" {
		meta.Title = result.Title
	}

	return &models.FetchResponse{
		Success:    true,
		StatusCode: result.StatusCode,
		FinalURL:   result.FinalURL,
		Content:    shaped,
		Metadata:   meta,
		EngineUsed: result.EngineUsed,
		Timing:     models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	}
}

// randomID generates a 16-hex-char job identifier.
func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
