package fetcher

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// nameToProto maps human-readable config strings to Rod protocol resource types.
var nameToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of well-known ad and tracking domains aborted when a
// request opts into ad blocking.
var adDomains = map[string]struct{}{
	"doubleclick.net":          {},
	"googlesyndication.com":    {},
	"googleadservices.com":     {},
	"google-analytics.com":     {},
	"googletagmanager.com":     {},
	"connect.facebook.net":     {},
	"fbcdn.net":                {},
	"adnxs.com":                {},
	"adsrvr.org":               {},
	"amazon-adsystem.com":      {},
	"criteo.com":               {},
	"outbrain.com":             {},
	"taboola.com":              {},
	"moatads.com":              {},
	"pubmatic.com":             {},
	"rubiconproject.com":       {},
	"scorecardresearch.com":    {},
	"hotjar.com":               {},
	"mixpanel.com":             {},
	"segment.io":               {},
	"chartbeat.com":            {},
	"openx.net":                {},
	"casalemedia.com":          {},
	"demdex.net":               {},
	"sharethis.com":            {},
	"addthis.com":              {},
}

// blockedResourceSet builds the O(1) abort-decision set from config strings.
// Unknown names are ignored so a config typo degrades to "allow" rather than
// breaking every fetch.
func blockedResourceSet(names []string) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := nameToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return blocked
}

// isAdDomain checks if a hostname (or any parent domain) is in the blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
}

// shouldAbort is the per-request filter decision: abort non-document asset
// types (and, optionally, ad/tracker hosts), allow everything else. Document
// and script requests always pass so the page can still render.
func shouldAbort(blocked map[proto.NetworkResourceType]struct{}, rt proto.NetworkResourceType, rawURL string, blockAds bool) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	if blockAds {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// mountHijack installs the request filter on the page. Every outgoing
// sub-resource request is classified and either aborted or continued.
//
// Must be mounted before navigation; the filter only applies to requests
// issued after it is running. Returns the router so the caller can defer
// router.Stop().
func mountHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := blockedResourceSet(blockedTypes)
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" + empty resourceType intercepts every request; the
	// abort/continue decision is made per request.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if shouldAbort(blocked, ctx.Request.Type(), ctx.Request.URL().String(), blockAds) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}
