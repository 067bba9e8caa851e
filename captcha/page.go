package captcha

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
)

// detectSiteKeyJS locates a reCAPTCHA v2 widget in the live document and
// returns its site key, or an empty string when the page has none. Both the
// explicit div form and the iframe embed are checked.
const detectSiteKeyJS = `() => {
	const el = document.querySelector('.g-recaptcha[data-sitekey], [data-sitekey]');
	if (el) return el.getAttribute('data-sitekey') || '';
	const frame = document.querySelector('iframe[src*="recaptcha/api2/anchor"], iframe[src*="recaptcha/enterprise/anchor"]');
	if (frame) {
		const m = frame.src.match(/[?&]k=([^&]+)/);
		if (m) return m[1];
	}
	return '';
}`

// applyTokenJS injects a solved token into the response textarea and fires
// the widget's completion callback, the way the widget itself would.
const applyTokenJS = `(token) => {
	let applied = false;
	document.querySelectorAll('textarea[name="g-recaptcha-response"], #g-recaptcha-response').forEach(el => {
		el.style.display = 'block';
		el.value = token;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		applied = true;
	});
	if (typeof ___grecaptcha_cfg !== 'undefined') {
		for (const id of Object.keys(___grecaptcha_cfg.clients || {})) {
			const client = ___grecaptcha_cfg.clients[id];
			const stack = [client];
			while (stack.length) {
				const obj = stack.pop();
				for (const key of Object.keys(obj || {})) {
					const val = obj[key];
					if (typeof val === 'function' && key === 'callback') {
						try { val(token); applied = true; } catch (e) {}
					} else if (val && typeof val === 'object' && stack.length < 200) {
						stack.push(val);
					}
				}
			}
		}
	}
	return applied;
}`

// SolveOnPage detects a reCAPTCHA challenge on an already-loaded page,
// resolves it through the solving service, and applies the token in place.
// Pages without a challenge are a no-op. Content extraction should only
// proceed after this returns nil.
func (s *Solver) SolveOnPage(ctx context.Context, page *rod.Page, pageURL string) error {
	p := page.Context(ctx)

	res, err := p.Eval(detectSiteKeyJS)
	if err != nil {
		return fmt.Errorf("captcha: sitekey detection failed: %w", err)
	}
	siteKey := res.Value.Str()
	if siteKey == "" {
		slog.Debug("captcha: no challenge on page", "url", pageURL)
		return nil
	}

	slog.Info("captcha: challenge detected, solving", "url", pageURL, "siteKey", siteKey)
	token, err := s.SolveRecaptchaV2(ctx, siteKey, pageURL)
	if err != nil {
		return err
	}

	applied, err := p.Eval(applyTokenJS, token)
	if err != nil {
		return fmt.Errorf("captcha: token injection failed: %w", err)
	}
	if !applied.Value.Bool() {
		return fmt.Errorf("captcha: no response field or callback accepted the token")
	}

	slog.Info("captcha: challenge cleared", "url", pageURL)
	return nil
}
