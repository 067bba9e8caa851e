package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/content"
	"github.com/specterhq/specter/fetcher"
	"github.com/specterhq/specter/models"
)

// perURLFetcher returns a per-URL canned result, failing URLs listed in fail.
type perURLFetcher struct {
	mu   sync.Mutex
	fail map[string]bool
	seen []string
}

func (f *perURLFetcher) Do(ctx context.Context, req *fetcher.Request) (*fetcher.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.URL)
	failing := f.fail[req.URL]
	f.mu.Unlock()

	if failing {
		return nil, models.NewFetchError(models.ErrCodeNavTimeout, "timed out", nil)
	}
	return &fetcher.Result{
		HTML:       `<html><head><title>ok</title></head><body><p>ok</p></body></html>`,
		StatusCode: 200,
		FinalURL:   req.URL,
		EngineUsed: fetcher.ModeBrowser,
	}, nil
}

func (f *perURLFetcher) Stats() models.SessionStats {
	return models.SessionStats{MaxSessions: 4}
}

func batchRouter(pf PageFetcher) *gin.Engine {
	r := gin.New()
	r.POST("/batch/fetch", PostBatch(pf, content.NewShaper()))
	r.GET("/batch/:id", GetBatch())
	return r
}

// waitForBatch polls the status endpoint until the job leaves "processing".
func waitForBatch(t *testing.T, r *gin.Engine, id string) *models.BatchStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint returned %d", w.Code)
		}

		var status models.BatchStatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("status is not JSON: %v", err)
		}
		if status.Status != "processing" {
			return &status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch never finished")
	return nil
}

func submitBatch(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, *models.BatchResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/batch/fetch", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp models.BatchResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
	}
	return w, &resp
}

func TestBatch_AllSucceed(t *testing.T) {
	pf := &perURLFetcher{}
	r := batchRouter(pf)

	w, resp := submitBatch(t, r, `{"urls":["https://a.example.com","https://b.example.com"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp.Status != "processing" || resp.Total != 2 {
		t.Errorf("submit response = %+v", resp)
	}

	status := waitForBatch(t, r, resp.ID)
	if status.Status != "completed" {
		t.Errorf("Status = %q, want completed", status.Status)
	}
	if status.Completed != 2 {
		t.Errorf("Completed = %d, want 2", status.Completed)
	}
	for i, result := range status.Results {
		if result == nil || !result.Success {
			t.Errorf("result %d = %+v, want success", i, result)
		}
	}
}

func TestBatch_PartialFailure(t *testing.T) {
	pf := &perURLFetcher{fail: map[string]bool{"https://bad.example.com": true}}
	r := batchRouter(pf)

	_, resp := submitBatch(t, r, `{"urls":["https://good.example.com","https://bad.example.com"]}`)

	status := waitForBatch(t, r, resp.ID)
	if status.Status != "partial" {
		t.Errorf("Status = %q, want partial", status.Status)
	}

	var failed *models.FetchResponse
	for _, result := range status.Results {
		if result != nil && !result.Success {
			failed = result
		}
	}
	if failed == nil {
		t.Fatal("no failed result recorded")
	}
	if failed.Error == nil || failed.Error.Code != models.ErrCodeNavTimeout {
		t.Errorf("failed result error = %+v", failed.Error)
	}
}

func TestBatch_AllFail(t *testing.T) {
	pf := &perURLFetcher{fail: map[string]bool{"https://bad.example.com": true}}
	r := batchRouter(pf)

	_, resp := submitBatch(t, r, `{"urls":["https://bad.example.com"]}`)

	if status := waitForBatch(t, r, resp.ID); status.Status != "failed" {
		t.Errorf("Status = %q, want failed", status.Status)
	}
}

func TestBatch_EmptyURLsRejected(t *testing.T) {
	r := batchRouter(&perURLFetcher{})

	if w, _ := submitBatch(t, r, `{"urls":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty url list", w.Code)
	}
}

func TestBatchJob_SnapshotIsolatedFromLaterWrites(t *testing.T) {
	b := &batchJob{job: models.BatchJob{
		ID:      "batch-x",
		Status:  "processing",
		Total:   2,
		Results: make([]*models.FetchResponse, 2),
	}}

	snap := b.snapshot(true)

	b.mu.Lock()
	b.job.Results[0] = &models.FetchResponse{Success: true}
	b.job.Completed = 1
	b.job.Status = "completed"
	b.mu.Unlock()

	if snap.Status != "processing" || snap.Completed != 0 {
		t.Errorf("snapshot observed later writes: %+v", snap)
	}
	if snap.Results[0] != nil {
		t.Error("snapshot results should be detached from the live slice")
	}
	if b.snapshot(false).Results != nil {
		t.Error("snapshot without results should omit the results slice")
	}
}

func TestGetBatch_UnknownID(t *testing.T) {
	r := batchRouter(&perURLFetcher{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch/batch-nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
