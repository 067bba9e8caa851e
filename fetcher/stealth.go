package fetcher

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// userAgent is the fixed spoofed user-agent. It is applied three times so
// every observable layer agrees: the launch flag, the protocol-level
// override, and the page-level navigator object patched by the stealth
// bundle. A mismatch between any two is itself an automation signal.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// acceptLanguage is the fixed language negotiation value, matching the
// navigator.languages override below.
const acceptLanguage = "en-US,en;q=0.9"

// acceptHeader is the Accept value a real Chrome sends for navigations.
const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"

// propertyOverrides patches the execution-context properties that basic bot
// detection reads, on top of the stealth bundle: the automation flag reports
// false, the plugin list is non-empty, and the language list is a realistic
// locale set.
const propertyOverrides = `() => {
	Object.defineProperty(navigator, 'webdriver', {
		get: () => false,
		configurable: true,
	});
	if (!navigator.plugins || navigator.plugins.length === 0) {
		Object.defineProperty(navigator, 'plugins', {
			get: () => [
				{ name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer' },
				{ name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer' },
			],
			configurable: true,
		});
	}
	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en'],
		configurable: true,
	});
}`

// applyStealth installs the evasions on the page. Must run before
// navigation: document-creation scripts only affect documents created
// afterwards.
func applyStealth(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return err
	}
	if _, err := page.EvalOnNewDocument(propertyOverrides); err != nil {
		return err
	}
	return nil
}

// forceIdentity pins the protocol-level user-agent and accept-language to
// the spoofed values, covering the gap where the network negotiation and the
// page-level overrides could otherwise disagree.
func forceIdentity(page *rod.Page) error {
	return proto.NetworkSetUserAgentOverride{
		UserAgent:      userAgent,
		AcceptLanguage: acceptLanguage,
	}.Call(page)
}

// declareAcceptHeader declares the fixed Accept header on all outgoing
// requests so document fetches resemble a real browser's.
func declareAcceptHeader(page *rod.Page) error {
	return proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept": gson.New(acceptHeader),
		},
	}.Call(page)
}
