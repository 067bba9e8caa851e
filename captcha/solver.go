// Package captcha solves reCAPTCHA challenges on live pages through the
// 2Captcha HTTP API.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIBase = "https://2captcha.com"

// Options tunes a Solver. Zero values fall back to sane defaults.
type Options struct {
	// APIBase overrides the 2Captcha endpoint, mainly for tests.
	APIBase string

	// SolveTimeout bounds one solve, submission to token. Default: 120s.
	SolveTimeout time.Duration

	// PollInterval is the delay between result polls. Default: 5s.
	PollInterval time.Duration
}

// Solver is a 2Captcha API client. It is immutable and safe for concurrent
// use; build one per API key and reuse it.
type Solver struct {
	apiKey       string
	apiBase      string
	solveTimeout time.Duration
	pollInterval time.Duration
	client       *http.Client
}

// NewSolver creates a Solver for the given 2Captcha API key.
func NewSolver(apiKey string, opts Options) *Solver {
	if opts.APIBase == "" {
		opts.APIBase = defaultAPIBase
	}
	if opts.SolveTimeout <= 0 {
		opts.SolveTimeout = 120 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Solver{
		apiKey:       apiKey,
		apiBase:      opts.APIBase,
		solveTimeout: opts.SolveTimeout,
		pollInterval: opts.PollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the JSON shape of both in.php and res.php replies.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
	Error   string `json:"error_text,omitempty"`
}

// SolveRecaptchaV2 submits a reCAPTCHA v2 task and polls until a token is
// ready. The whole exchange is bounded by SolveTimeout on top of whatever
// deadline ctx already carries.
func (s *Solver) SolveRecaptchaV2(ctx context.Context, siteKey, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.solveTimeout)
	defer cancel()

	taskID, err := s.submit(ctx, map[string]string{
		"method":    "userrecaptcha",
		"googlekey": siteKey,
		"pageurl":   pageURL,
	})
	if err != nil {
		return "", err
	}
	return s.poll(ctx, taskID)
}

// submit posts a task to in.php and returns the task ID.
func (s *Solver) submit(ctx context.Context, params map[string]string) (string, error) {
	resp, err := s.call(ctx, "/in.php", params)
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("captcha: submit rejected: %s %s", resp.Request, resp.Error)
	}
	return resp.Request, nil
}

// poll asks res.php for the solution until it is ready, the solve times out,
// or the service reports an error.
func (s *Solver) poll(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("captcha: solve timed out: %w", ctx.Err())
		case <-ticker.C:
			resp, err := s.call(ctx, "/res.php", map[string]string{
				"action": "get",
				"id":     taskID,
			})
			if err != nil {
				return "", err
			}
			if resp.Status == 1 {
				return resp.Request, nil
			}
			if resp.Request != "CAPCHA_NOT_READY" {
				return "", fmt.Errorf("captcha: solve failed: %s %s", resp.Request, resp.Error)
			}
		}
	}
}

// call issues one GET against the 2Captcha API with the key and json flag
// always included.
func (s *Solver) call(ctx context.Context, path string, params map[string]string) (*apiResponse, error) {
	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("json", "1")
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(s.apiBase, "/")+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("captcha: build request: %w", err)
	}

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("captcha: read response: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("captcha: parse response: %w", err)
	}
	return &resp, nil
}
