package fetcher

import (
	"time"

	"github.com/specterhq/specter/models"
)

// Mode selects the fetch strategy.
const (
	ModeBrowser = "browser" // dedicated headless Chrome process
	ModeHTTP    = "http"    // plain HTTP with a Chrome TLS fingerprint
	ModeAuto    = "auto"    // HTTP first, browser when the page looks JS-gated
)

// Request describes one page fetch. Every call is independent: nothing in a
// Request is retained by the Fetcher after Fetch returns.
type Request struct {
	// URL is the absolute target URL. Required.
	URL string

	// Proxy routes browser traffic through an upstream proxy. A nil value
	// or empty Proxy.URL disables all proxy behavior. Credentials are
	// exchanged only when Proxy.User is set; see models.ProxySettings.
	Proxy *models.ProxySettings

	// CaptchaAPIKey overrides the Fetcher-level 2Captcha key for this
	// request. Empty means use the Fetcher's configured key, if any.
	CaptchaAPIKey string

	// Mode selects the fetch strategy. Empty means ModeBrowser.
	Mode string

	// WaitSelector is the root content element waited for after
	// navigation. Empty means "body".
	WaitSelector string

	// NavigationTimeout overrides the configured navigation bound.
	// Zero means use the Fetcher default. Values above the configured
	// maximum are clamped.
	NavigationTimeout time.Duration

	// BlockAds additionally aborts requests to known ad/tracker domains.
	BlockAds bool
}

// Result is the outcome of a successful fetch. A failed fetch produces a nil
// Result and a *models.FetchError carrying the failure kind.
type Result struct {
	// HTML is the full serialized document. Never empty on success.
	HTML string

	// Title is the document title at extraction time.
	Title string

	// FinalURL is the page URL after redirects.
	FinalURL string

	// StatusCode is the navigation response status, 0 when unknown.
	StatusCode int

	// EngineUsed records which strategy produced the result.
	EngineUsed string
}
