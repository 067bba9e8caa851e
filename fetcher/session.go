package fetcher

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/specterhq/specter/config"
	"github.com/specterhq/specter/models"
)

// session is one launched browser process plus one page. It is exclusively
// owned by a single fetch and is always released before the fetch returns.
type session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// newSession launches a dedicated Chrome process and opens one page.
//
// Flag set: stability flags for containerized environments (no sandbox,
// /dev/shm avoidance, GPU off), fixed window geometry, fixed spoofed
// user-agent, and the usual automation-hiding flags. The proxy-server flag
// is added only when the request carries a proxy URL.
func newSession(cfg config.BrowserConfig, proxy *models.ProxySettings) (*session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	switch {
	case proxy.Enabled():
		l = l.Proxy(proxy.URL)
	case cfg.DefaultProxy != "":
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-setuid-sandbox"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	l.Set(flags.Flag("user-agent"), userAgent)

	// Automation-hiding flags.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewFetchError(
			models.ErrCodeLaunch,
			"failed to launch browser",
			err,
		)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewFetchError(
			models.ErrCodeLaunch,
			"failed to connect to browser",
			err,
		)
	}

	// Proxy credential exchange. Installed before any page exists so the
	// very first navigation request is answerable. Deliberately skipped
	// when User is empty, even if Pwd is set: a URL-only proxy is used
	// unauthenticated and an orphan password is ignored.
	if proxy.Authenticated() {
		go waitProxyAuth(browser.HandleAuth(proxy.User, proxy.Pwd))
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, models.NewFetchError(
			models.ErrCodeLaunch,
			"failed to open page",
			err,
		)
	}

	return &session{launcher: l, browser: browser, page: page}, nil
}

// waitProxyAuth runs the credential exchange handler until the browser
// connection closes. The wait errors when the session is torn down before
// any auth challenge arrived, which is normal for a proxy that never asks;
// that must never escape the goroutine as a panic.
func waitProxyAuth(wait func() error) {
	if err := wait(); err != nil {
		slog.Debug("session: proxy auth handler stopped", "error", err)
	}
}

// release tears the session down: page, browser connection, then the Chrome
// process itself. Safe to call on every exit path; errors are logged, not
// surfaced, because the fetch outcome is already decided by then.
func (s *session) release() {
	if err := s.page.Close(); err != nil {
		slog.Debug("session: page close failed", "error", err)
	}
	if err := s.browser.Close(); err != nil {
		slog.Debug("session: browser close failed", "error", err)
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
}
