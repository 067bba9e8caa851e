package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAPI stands in for the 2Captcha service: it accepts one task and
// returns the solution after notReadyCount polls.
type fakeAPI struct {
	notReadyCount int32
	polls         atomic.Int32

	gotKey     string
	gotMethod  string
	gotSiteKey string
	gotPageURL string
}

func (f *fakeAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("json") != "1" {
			http.Error(w, "json flag missing", http.StatusBadRequest)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/in.php"):
			f.gotKey = q.Get("key")
			f.gotMethod = q.Get("method")
			f.gotSiteKey = q.Get("googlekey")
			f.gotPageURL = q.Get("pageurl")
			json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "task-42"})

		case strings.HasSuffix(r.URL.Path, "/res.php"):
			if f.polls.Add(1) <= f.notReadyCount {
				json.NewEncoder(w).Encode(apiResponse{Status: 0, Request: "CAPCHA_NOT_READY"})
				return
			}
			json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "solved-token"})

		default:
			http.NotFound(w, r)
		}
	}
}

func testSolver(apiBase string) *Solver {
	return NewSolver("test-key", Options{
		APIBase:      apiBase,
		SolveTimeout: 5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
}

func TestSolveRecaptchaV2(t *testing.T) {
	api := &fakeAPI{notReadyCount: 2}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	token, err := testSolver(srv.URL).SolveRecaptchaV2(
		context.Background(), "site-key-abc", "https://example.com/login")
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	if token != "solved-token" {
		t.Errorf("token = %q, want %q", token, "solved-token")
	}
	if api.gotKey != "test-key" || api.gotMethod != "userrecaptcha" {
		t.Errorf("submit params: key=%q method=%q", api.gotKey, api.gotMethod)
	}
	if api.gotSiteKey != "site-key-abc" || api.gotPageURL != "https://example.com/login" {
		t.Errorf("submit params: googlekey=%q pageurl=%q", api.gotSiteKey, api.gotPageURL)
	}
	if got := api.polls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3 (two not-ready, one solved)", got)
	}
}

func TestSolveRecaptchaV2_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{
			Status: 0, Request: "ERROR_WRONG_USER_KEY", Error: "invalid api key",
		})
	}))
	defer srv.Close()

	_, err := testSolver(srv.URL).SolveRecaptchaV2(context.Background(), "k", "https://example.com")
	if err == nil {
		t.Fatal("rejected submission should be an error")
	}
	if !strings.Contains(err.Error(), "ERROR_WRONG_USER_KEY") {
		t.Errorf("error should carry the service code: %v", err)
	}
}

func TestSolveRecaptchaV2_SolveError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/in.php") {
			json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "task-1"})
			return
		}
		json.NewEncoder(w).Encode(apiResponse{Status: 0, Request: "ERROR_CAPTCHA_UNSOLVABLE"})
	}))
	defer srv.Close()

	_, err := testSolver(srv.URL).SolveRecaptchaV2(context.Background(), "k", "https://example.com")
	if err == nil {
		t.Fatal("unsolvable captcha should be an error")
	}
	if !strings.Contains(err.Error(), "ERROR_CAPTCHA_UNSOLVABLE") {
		t.Errorf("error should carry the service code: %v", err)
	}
}

func TestSolveRecaptchaV2_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/in.php") {
			json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "task-1"})
			return
		}
		json.NewEncoder(w).Encode(apiResponse{Status: 0, Request: "CAPCHA_NOT_READY"})
	}))
	defer srv.Close()

	s := NewSolver("test-key", Options{
		APIBase:      srv.URL,
		SolveTimeout: 50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	_, err := s.SolveRecaptchaV2(context.Background(), "k", "https://example.com")
	if err == nil {
		t.Fatal("a solve that never completes should time out")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should carry the deadline: %v", err)
	}
}

func TestNewSolver_Defaults(t *testing.T) {
	s := NewSolver("k", Options{})
	if s.apiBase != defaultAPIBase {
		t.Errorf("apiBase = %q, want %q", s.apiBase, defaultAPIBase)
	}
	if s.solveTimeout != 120*time.Second {
		t.Errorf("solveTimeout = %v, want 120s", s.solveTimeout)
	}
	if s.pollInterval != 5*time.Second {
		t.Errorf("pollInterval = %v, want 5s", s.pollInterval)
	}
}
