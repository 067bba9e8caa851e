package fetcher

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlockedResourceSet(t *testing.T) {
	blocked := blockedResourceSet([]string{"Image", "Stylesheet", "Font", "Media"})

	for _, rt := range []proto.NetworkResourceType{
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeMedia,
	} {
		if _, ok := blocked[rt]; !ok {
			t.Errorf("%s should be in the blocked set", rt)
		}
	}

	if _, ok := blocked[proto.NetworkResourceTypeDocument]; ok {
		t.Error("Document must never be blocked")
	}
	if _, ok := blocked[proto.NetworkResourceTypeScript]; ok {
		t.Error("Script was not configured and must not be blocked")
	}
}

func TestBlockedResourceSet_IgnoresUnknownNames(t *testing.T) {
	blocked := blockedResourceSet([]string{"Image", "Bogus", ""})
	if len(blocked) != 1 {
		t.Errorf("unknown names should be ignored, got set of %d", len(blocked))
	}
}

func TestShouldAbort_ResourceTypes(t *testing.T) {
	blocked := blockedResourceSet([]string{"Image", "Stylesheet", "Font", "Media"})

	abortable := []proto.NetworkResourceType{
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeMedia,
	}
	for _, rt := range abortable {
		if !shouldAbort(blocked, rt, "https://example.com/a.png", false) {
			t.Errorf("%s request should be aborted", rt)
		}
	}

	allowed := []proto.NetworkResourceType{
		proto.NetworkResourceTypeDocument,
		proto.NetworkResourceTypeScript,
		proto.NetworkResourceTypeXHR,
		proto.NetworkResourceTypeFetch,
	}
	for _, rt := range allowed {
		if shouldAbort(blocked, rt, "https://example.com/", false) {
			t.Errorf("%s request should be allowed through", rt)
		}
	}
}

func TestShouldAbort_AdDomains(t *testing.T) {
	blocked := blockedResourceSet(nil)

	// Script from an ad domain: aborted only when ad blocking is on.
	adURL := "https://pagead2.googlesyndication.com/pagead/js/adsbygoogle.js"
	if !shouldAbort(blocked, proto.NetworkResourceTypeScript, adURL, true) {
		t.Error("ad-domain script should be aborted when blockAds is on")
	}
	if shouldAbort(blocked, proto.NetworkResourceTypeScript, adURL, false) {
		t.Error("ad-domain script should be allowed when blockAds is off")
	}

	if shouldAbort(blocked, proto.NetworkResourceTypeScript, "https://example.com/app.js", true) {
		t.Error("non-ad script should be allowed even with blockAds on")
	}
}

func TestIsAdDomain(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"ad.doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"DOUBLECLICK.NET", true},
		{"example.com", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isAdDomain(tc.host); got != tc.want {
			t.Errorf("isAdDomain(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}
}
