package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	xproxy "golang.org/x/net/proxy"

	"github.com/specterhq/specter/models"
)

// httpFetcher performs plain HTTP requests with a Chrome TLS fingerprint
// (utls). It is the fast path for static pages: no process launch, no JS.
type httpFetcher struct {
	defaultProxy string
}

func newHTTPFetcher(defaultProxy string) *httpFetcher {
	return &httpFetcher{defaultProxy: defaultProxy}
}

// contextDialer is the dial capability TLS connections are built over,
// satisfied by net.Dialer and by the SOCKS5 dialer.
type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// fetch retrieves the URL over HTTP/1.1 with browser-like headers and TLS.
// Proxy credentials, when present, are carried in the proxy URL userinfo
// since there is no browser session to run a credential exchange on.
func (f *httpFetcher) fetch(ctx context.Context, targetURL string, proxy *models.ProxySettings) (*Result, error) {
	proxyURL := f.proxyFor(proxy)

	dialer := contextDialer(&net.Dialer{})
	transport := &http.Transport{ForceAttemptHTTP2: false}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, models.NewFetchError(models.ErrCodeInvalidInput, "invalid proxy url", err)
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			dialer, err = socksDialer(u)
			if err != nil {
				return nil, err
			}
			transport.DialContext = dialer.DialContext
		default:
			// Never fall through to a direct connection: a request the
			// caller routed through a proxy must not leave without one.
			return nil, models.NewFetchError(
				models.ErrCodeInvalidInput,
				"unsupported proxy scheme for http mode: "+u.Scheme,
				nil,
			)
		}
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLSChrome(ctx, dialer, network, addr)
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return nil, fmt.Errorf("httpfetch: status %d, content-type %q", resp.StatusCode, ct)
	}

	return &Result{
		HTML:       string(body),
		Title:      extractTitle(body),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineUsed: ModeHTTP,
	}, nil
}

// proxyFor resolves the effective proxy URL for one request, folding
// credentials into the userinfo when authentication is requested.
func (f *httpFetcher) proxyFor(proxy *models.ProxySettings) string {
	if !proxy.Enabled() {
		return f.defaultProxy
	}
	if !proxy.Authenticated() {
		return proxy.URL
	}
	u, err := url.Parse(proxy.URL)
	if err != nil {
		return proxy.URL
	}
	u.User = url.UserPassword(proxy.User, proxy.Pwd)
	return u.String()
}

// socksDialer builds a SOCKS5 dialer from the proxy URL, carrying any
// userinfo credentials.
func socksDialer(u *url.URL) (contextDialer, error) {
	var auth *xproxy.Auth
	if u.User != nil {
		pwd, _ := u.User.Password()
		auth = &xproxy.Auth{User: u.User.Username(), Password: pwd}
	}
	d, err := xproxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{})
	if err != nil {
		return nil, fmt.Errorf("httpfetch: socks proxy: %w", err)
	}
	cd, ok := d.(contextDialer)
	if !ok {
		return nil, fmt.Errorf("httpfetch: socks dialer does not support context")
	}
	return cd, nil
}

// chromeSpecH1 builds a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only, so the server never negotiates h2 (which Go's
// http.Transport cannot frame over a utls connection).
//
// A fresh spec is built for every connection: ApplyPreset fills extension
// state (SNI, key shares) in place, so a shared spec would carry the first
// connection's hostname into every later handshake.
func chromeSpecH1() (tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return tls.ClientHelloSpec{}, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return spec, nil
}

// dialTLSChrome establishes a TLS connection using the Chrome fingerprint,
// over the given dialer (direct or SOCKS5).
func dialTLSChrome(ctx context.Context, d contextDialer, network, addr string) (net.Conn, error) {
	spec, err := chromeSpecH1()
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build tls spec: %w", err)
	}

	rawConn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(rawConn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

var reNoscriptWarning = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

var emptySPARoots = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
}

// needsBrowser decides whether statically fetched HTML is likely a JS-gated
// shell that only renders in a real browser: near-empty visible text, an
// empty SPA root container, a noscript "enable JavaScript" warning, or a
// script-heavy page with little content.
func needsBrowser(body []byte) bool {
	visible := extractVisibleText(body)
	if len(visible) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, root := range emptySPARoots {
		if strings.Contains(lower, root) {
			return true
		}
	}
	if reNoscriptWarning.MatchString(lower) {
		return true
	}
	if strings.Count(lower, "<script") > 10 && len(visible) < 500 {
		return true
	}
	return false
}

// extractTitle finds the first <title> element's text.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// extractVisibleText strips tags and script/style/noscript content from
// within <body>. Heuristic use only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
