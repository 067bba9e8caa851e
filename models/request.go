package models

// FetchRequest is the payload for POST /api/v1/fetch.
type FetchRequest struct {
	// URL is the target page to fetch. Required, absolute.
	URL string `json:"url" binding:"required,url"`

	// Proxy routes the browser's traffic through an upstream proxy.
	// Absent or with an empty URL, all proxy behavior is disabled.
	Proxy *ProxySettings `json:"proxy,omitempty"`

	// CaptchaAPIKey enables reCAPTCHA solving via the 2Captcha HTTP API.
	// When empty, pages with captchas are returned as-is.
	CaptchaAPIKey string `json:"captcha_api_key,omitempty"`

	// Timeout is the maximum duration in seconds for the navigation phase.
	// Default: 60. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// FetchMode controls the fetching strategy.
	// "browser" (default): dedicated headless Chrome process per request.
	// "http": pure HTTP with a Chrome TLS fingerprint (fastest, no JS).
	// "auto": try HTTP first, escalate to the browser if the static HTML
	// looks JS-gated.
	FetchMode string `json:"fetch_mode,omitempty" binding:"omitempty,oneof=auto browser http"`

	// OutputFormat controls the response content format.
	// Allowed: "html" (default), "markdown", "text".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown text"`

	// ExtractMode controls the content extraction strategy.
	// "raw" (default): the full rendered document.
	// "article": Mozilla Readability main-content extraction.
	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=raw article"`

	// CSSSelector optionally narrows the returned content to the matched
	// elements' outer HTML. Validated before the browser is launched.
	CSSSelector string `json:"css_selector,omitempty"`

	// WaitSelector is the readiness element the fetcher waits for after
	// navigation. Default: "body".
	WaitSelector string `json:"wait_selector,omitempty"`

	// BlockAds additionally aborts requests to known ad/tracker domains.
	BlockAds bool `json:"block_ads,omitempty"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned without launching a browser.
	// 0 (default) bypasses the cache entirely.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// ProxySettings configures an upstream proxy for one fetch.
//
// Authentication is attempted only when User is non-empty. A set URL with an
// empty User configures the proxy server flag and never exchanges
// credentials, even if Pwd is set — unauthenticated proxy use is valid and
// an orphan password is ignored deliberately.
type ProxySettings struct {
	// URL is the proxy server, e.g. "http://host:port" or "socks5://host:port".
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// User is the proxy username. Setting it triggers a credential
	// exchange on the session before the first navigation.
	User string `json:"user,omitempty"`

	// Pwd is the proxy password. Ignored when User is empty.
	Pwd string `json:"pwd,omitempty"`
}

// Enabled reports whether any proxy behavior applies.
func (p *ProxySettings) Enabled() bool {
	return p != nil && p.URL != ""
}

// Authenticated reports whether a credential exchange should happen.
func (p *ProxySettings) Authenticated() bool {
	return p.Enabled() && p.User != ""
}

// Defaults applies default values to unset fields.
func (r *FetchRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 60
	}
	if r.FetchMode == "" {
		r.FetchMode = "browser"
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
	if r.ExtractMode == "" {
		r.ExtractMode = "raw"
	}
	if r.WaitSelector == "" {
		r.WaitSelector = "body"
	}
}
