package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/selector"
)

// loginPromptScan walks elements whose text contains a login phrase and
// reports true when one of them sits inside a positioned overlay. Checking
// the ancestry filters out footer links and help text that mention login
// without being a prompt; the visibility check filters out hidden template
// nodes that carry the phrases without being rendered.
const loginPromptScan = `(phrases) => {
	const els = document.querySelectorAll('div,span,p,a,button,h1,h2,h3');
	for (const el of els) {
		const text = (el.textContent || '').trim();
		if (!text || text.length > 60) continue;
		if (!phrases.some(p => text.includes(p))) continue;
		const cs0 = window.getComputedStyle(el);
		if (cs0.display === 'none' || cs0.visibility === 'hidden') continue;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) continue;
		let node = el;
		for (let i = 0; node && i < 8; i++) {
			const cs = window.getComputedStyle(node);
			const z = parseInt(cs.zIndex || '0', 10);
			if ((cs.position === 'fixed' || cs.position === 'absolute') && z > 0) return true;
			node = node.parentElement;
		}
	}
	return false;
}`

// DetectorConfig tunes the login-state signals. Zero value gets defaults
// matching the platform's current markup and cookie names.
type DetectorConfig struct {
	// LoginPhrases mark a login prompt when found inside an overlay.
	LoginPhrases []string `yaml:"login_phrases"`
	// CookieNames are session cookies; any of them non-empty means logged in.
	CookieNames []string `yaml:"cookie_names"`
	// Origin scopes the cookie lookup.
	Origin string `yaml:"origin"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *DetectorConfig) applyDefaults() {
	if len(c.LoginPhrases) == 0 {
		c.LoginPhrases = []string{"扫码登录", "手机号登录", "密码登录", "短信登录", "其他登录方式"}
	}
	if len(c.CookieNames) == 0 {
		c.CookieNames = []string{"web_session", "galaxy_creator_session_id"}
	}
	if c.Origin == "" {
		c.Origin = "https://www.xiaohongshu.com"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector classifies a page as Authenticated, Unauthenticated, or Unknown.
//
// Signal order matters: a login overlay can be rendered on top of a page
// that still carries stale session cookies, so the negative signal is
// checked first and short-circuits.
type Detector struct {
	cfg DetectorConfig
	res *selector.Resolver
	log *slog.Logger
}

func NewDetector(cfg DetectorConfig, res *selector.Resolver) *Detector {
	cfg.applyDefaults()
	return &Detector{cfg: cfg, res: res, log: cfg.Logger}
}

// Detect inspects one page snapshot. The returned error is non-nil only
// when the browser target is gone.
func (d *Detector) Detect(ctx context.Context, page browser.Page) (AuthState, error) {
	prompt, err := page.EvalBool(ctx, loginPromptScan, d.cfg.LoginPhrases)
	if err != nil {
		if browser.IsTargetClosed(err) {
			return Unknown, err
		}
		d.log.Debug("login prompt scan failed", "err", err)
	} else if prompt {
		return Unauthenticated, nil
	}

	cookies, err := page.Cookies(ctx, d.cfg.Origin)
	if err != nil {
		if browser.IsTargetClosed(err) {
			return Unknown, err
		}
		d.log.Debug("cookie lookup failed", "err", err)
	} else {
		for _, c := range cookies {
			for _, name := range d.cfg.CookieNames {
				if c.Name == name && strings.TrimSpace(c.Value) != "" {
					return Authenticated, nil
				}
			}
		}
	}

	if el, err := d.res.Resolve(page, "session", "identity"); err != nil {
		return Unknown, err
	} else if el != nil && el.Visible() {
		if text := selector.ElementText(el, ""); text != "" {
			return Authenticated, nil
		}
	}
	if el, err := d.res.Resolve(page, "session", "login_button"); err != nil {
		return Unknown, err
	} else if el != nil && el.Visible() {
		return Unauthenticated, nil
	}

	return Unknown, nil
}
