// Package fetcher implements stealth headless page fetching. One call, one
// dedicated browser process, one rendered document.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/specterhq/specter/captcha"
	"github.com/specterhq/specter/config"
	"github.com/specterhq/specter/models"
)

// Fetcher fetches pages. It holds no mutable state besides in-flight session
// accounting and is safe for concurrent use; every Fetch owns its resources
// exclusively.
type Fetcher struct {
	browserCfg config.BrowserConfig
	fetchCfg   config.FetcherConfig
	captchaCfg config.CaptchaConfig

	// solver is built once per Fetcher from the configured API key.
	// Per-request keys construct a throwaway Solver; nothing shared is
	// ever mutated by a request.
	solver *captcha.Solver

	httpFetcher    *httpFetcher
	sessionSlots   chan struct{}
	activeSessions atomic.Int32
}

// New creates a Fetcher. No browser is launched until the first Fetch.
func New(browserCfg config.BrowserConfig, fetchCfg config.FetcherConfig, captchaCfg config.CaptchaConfig) *Fetcher {
	f := &Fetcher{
		browserCfg:   browserCfg,
		fetchCfg:     fetchCfg,
		captchaCfg:   captchaCfg,
		httpFetcher:  newHTTPFetcher(browserCfg.DefaultProxy),
		sessionSlots: make(chan struct{}, browserCfg.MaxSessions),
	}
	if captchaCfg.APIKey != "" {
		f.solver = captcha.NewSolver(captchaCfg.APIKey, captcha.Options{
			SolveTimeout: captchaCfg.SolveTimeout,
			PollInterval: captchaCfg.PollInterval,
		})
	}
	return f
}

// Stats returns a snapshot of in-flight browser sessions.
func (f *Fetcher) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    f.browserCfg.MaxSessions,
		ActiveSessions: int(f.activeSessions.Load()),
	}
}

// Do dispatches a fetch according to req.Mode. Every failure is logged once
// with the originating URL and cause, and surfaced as a *models.FetchError.
func (f *Fetcher) Do(ctx context.Context, req *Request) (*Result, error) {
	result, err := f.dispatch(ctx, req)
	if err != nil {
		slog.Error("fetch failed", "url", req.URL, "error", err)
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) dispatch(ctx context.Context, req *Request) (*Result, error) {
	switch req.Mode {
	case ModeHTTP:
		result, err := f.httpFetcher.fetch(ctx, req.URL, req.Proxy)
		if err != nil {
			return nil, categorizeError(err, "http fetch failed")
		}
		return result, nil

	case ModeAuto:
		// Fast path first; a dead proxy or JS-gated shell escalates to
		// the browser rather than failing the fetch.
		httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		result, err := f.httpFetcher.fetch(httpCtx, req.URL, req.Proxy)
		cancel()
		if err == nil && !needsBrowser([]byte(result.HTML)) {
			return result, nil
		}
		if err != nil {
			slog.Debug("auto mode: http path failed, escalating to browser",
				"url", req.URL, "error", err)
		}
		return f.Fetch(ctx, req)

	default:
		return f.Fetch(ctx, req)
	}
}

// Fetch runs the full browser-based fetch.
//
// Lifecycle (the order is load-bearing):
//
//  1. Session slot        – fail fast when the process cap is reached
//  2. Launch              – dedicated Chrome, launch flags incl. proxy
//     (credential exchange mounts here, before any navigation)
//  3. DEFER: release      – page + browser + process teardown on every path
//  4. Stealth injection   – before navigation or it does nothing
//  5. Identity pinning    – Accept header, protocol-level UA/Accept-Language
//  6. Hijack mount        – abort Image/Stylesheet/Font/Media, before navigation
//  7. Navigate            – wait for DOMContentLoaded, bounded
//  8. Readiness           – wait for the root content element, bounded
//  9. Captcha             – solve in place when a key is present, bounded
//  10. Extract            – serialize the full document
func (f *Fetcher) Fetch(ctx context.Context, req *Request) (*Result, error) {
	// ── 1. Session slot ─────────────────────────────────────────────
	select {
	case f.sessionSlots <- struct{}{}:
	default:
		return nil, models.NewFetchError(
			models.ErrCodeRateLimited,
			"concurrent session limit reached",
			nil,
		)
	}
	defer func() { <-f.sessionSlots }()

	f.activeSessions.Add(1)
	defer f.activeSessions.Add(-1)

	// ── 2. Launch the dedicated browser process ─────────────────────
	sess, err := newSession(f.browserCfg, req.Proxy)
	if err != nil {
		return nil, err
	}

	// ── 3. CRITICAL DEFER: the session dies on every exit path ──────
	defer sess.release()

	page := sess.page

	// ── 4. Stealth injection ────────────────────────────────────────
	if err := applyStealth(page); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"url", req.URL, "error", err)
	}

	// ── 5. Identity pinning ─────────────────────────────────────────
	if err := declareAcceptHeader(page); err != nil {
		return nil, models.NewFetchError(models.ErrCodeLaunch, "failed to set headers", err)
	}
	if err := forceIdentity(page); err != nil {
		return nil, models.NewFetchError(models.ErrCodeLaunch, "failed to override user agent", err)
	}

	// ── 6. Hijack mount ─────────────────────────────────────────────
	router := mountHijack(page, f.fetchCfg.BlockedResourceTypes, req.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 7. Navigate, bounded by the navigation timeout ──────────────
	navTimeout := f.navTimeout(req)
	navCtx, cancelNav := context.WithTimeout(ctx, navTimeout)
	defer cancelNav()

	p := page.Context(navCtx)

	// The DOMContentLoaded waiter registers its listener before Navigate
	// so the event cannot be missed. Waiting for structural load rather
	// than full resource completion is a deliberate latency tradeoff.
	waitDOM := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation failed")
	}
	waitDOM()
	if navCtx.Err() != nil {
		return nil, models.NewFetchError(
			models.ErrCodeNavTimeout,
			"document did not reach DOMContentLoaded in time",
			navCtx.Err(),
		)
	}

	// ── 8. Readiness: wait for the root content element ─────────────
	readyCtx, cancelReady := context.WithTimeout(ctx, f.fetchCfg.ReadinessTimeout)
	defer cancelReady()

	selector := req.WaitSelector
	if selector == "" {
		selector = "body"
	}
	if _, err := page.Context(readyCtx).Element(selector); err != nil {
		return nil, models.NewFetchError(
			models.ErrCodeReadiness,
			"root content element never appeared: "+selector,
			err,
		)
	}

	// ── 9. Captcha solving ──────────────────────────────────────────
	if solver := f.solverFor(req); solver != nil {
		if err := solver.SolveOnPage(ctx, page, req.URL); err != nil {
			return nil, models.NewFetchError(
				models.ErrCodeCaptcha,
				"captcha solving failed",
				err,
			)
		}
	}

	// ── 10. Extract the rendered document ───────────────────────────
	extractCtx, cancelExtract := context.WithTimeout(ctx, 30*time.Second)
	defer cancelExtract()
	p = page.Context(extractCtx)

	html, err := p.HTML()
	if err != nil {
		return nil, models.NewFetchError(
			models.ErrCodeExtraction,
			"failed to serialize document",
			err,
		)
	}

	return &Result{
		HTML:       html,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		FinalURL:   finalURLOr(p, req.URL),
		StatusCode: navigationStatus(p),
		EngineUsed: ModeBrowser,
	}, nil
}

// navTimeout resolves the effective navigation bound for one request.
func (f *Fetcher) navTimeout(req *Request) time.Duration {
	t := req.NavigationTimeout
	if t <= 0 {
		t = f.fetchCfg.NavigationTimeout
	}
	if f.fetchCfg.MaxTimeout > 0 && t > f.fetchCfg.MaxTimeout {
		t = f.fetchCfg.MaxTimeout
	}
	return t
}

// solverFor picks the captcha solver for one request: a throwaway one for a
// per-request key, the shared one otherwise, nil when solving is disabled.
func (f *Fetcher) solverFor(req *Request) *captcha.Solver {
	if req.CaptchaAPIKey != "" {
		return captcha.NewSolver(req.CaptchaAPIKey, captcha.Options{
			SolveTimeout: f.captchaCfg.SolveTimeout,
			PollInterval: f.captchaCfg.PollInterval,
		})
	}
	return f.solver
}

// navigationStatus reads the HTTP status of the navigation from the
// performance timeline. Best-effort: 0 when unavailable. Avoids CDP network
// event listeners, which conflict with the Fetch-domain hijack router.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing errors (optional metadata only).
func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func finalURLOr(p *rod.Page, fallback string) string {
	if u := evalStringOrEmpty(p, `() => window.location.href`); u != "" {
		return u
	}
	return fallback
}

// proxyErrorMarkers are the Chrome net error strings a dead or rejecting
// proxy produces during navigation.
var proxyErrorMarkers = []string{
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_NO_SUPPORTED_PROXIES",
	"ERR_PROXY_AUTH",
}

// categorizeError wraps raw errors into typed FetchErrors so the API layer
// can map them to HTTP status codes. Already-typed errors pass through
// unchanged.
func categorizeError(err error, msg string) *models.FetchError {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewFetchError(models.ErrCodeNavTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewFetchError(models.ErrCodeNavTimeout, "fetch canceled", err)
	}
	errText := err.Error()
	for _, marker := range proxyErrorMarkers {
		if strings.Contains(errText, marker) {
			return models.NewFetchError(models.ErrCodeProxyAuth, "proxy rejected the connection", err)
		}
	}
	return models.NewFetchError(models.ErrCodeNavFailed, msg, err)
}
