package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// waitPollInterval is how often WaitForAny re-queries the DOM. The platform
// renders through a SPA framework, so elements appear between frames and a
// coarse poll is enough.
const waitPollInterval = 100 * time.Millisecond

// Tab is the rod-backed Page implementation.
type Tab struct {
	page    *rod.Page
	navWait time.Duration
	log     *slog.Logger
}

var _ Page = (*Tab)(nil)

func (t *Tab) setUserAgent(ua string) error {
	return t.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

// Goto navigates and waits for the load event. SPA pages keep rendering
// after load, so a load timeout is logged and tolerated, not fatal.
func (t *Tab) Goto(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.navWait)
	defer cancel()

	if err := t.page.Context(navCtx).Navigate(url); err != nil {
		return wrapTransport(fmt.Errorf("browser: navigate %s: %w", url, err))
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		t.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

func (t *Tab) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, t.navWait)
	defer cancel()

	if err := t.page.Context(navCtx).Reload(); err != nil {
		return wrapTransport(fmt.Errorf("browser: reload: %w", err))
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		t.log.Warn("browser: wait load after reload", "error", err)
	}
	return nil
}

func (t *Tab) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (t *Tab) Query(selector string) (Element, error) {
	els, err := t.page.Elements(selector)
	if err != nil {
		return nil, wrapTransport(err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &elem{el: els[0]}, nil
}

func (t *Tab) QueryAll(selector string) ([]Element, error) {
	els, err := t.page.Elements(selector)
	if err != nil {
		return nil, wrapTransport(err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &elem{el: el})
	}
	return out, nil
}

// WaitForAny polls every selector until one matches or timeout elapses.
// A nil result with nil error means "nothing appeared"; callers treat
// that as a degraded outcome, not a failure.
func (t *Tab) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			el, err := t.Query(sel)
			if err != nil {
				return nil, err
			}
			if el != nil {
				return el, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, wrapTransport(ctx.Err())
		case <-time.After(waitPollInterval):
		}
	}
}

func (t *Tab) EvalBool(ctx context.Context, js string, args ...any) (bool, error) {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return false, wrapTransport(err)
	}
	return res.Value.Bool(), nil
}

func (t *Tab) EvalString(ctx context.Context, js string, args ...any) (string, error) {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", wrapTransport(err)
	}
	return res.Value.Str(), nil
}

func (t *Tab) Cookies(ctx context.Context, originURL string) ([]Cookie, error) {
	cookies, err := t.page.Context(ctx).Cookies([]string{originURL})
	if err != nil {
		return nil, wrapTransport(err)
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out, nil
}

func (t *Tab) ScrollBy(ctx context.Context, amount int) error {
	_, err := t.page.Context(ctx).Eval(`(n) => window.scrollBy(0, n)`, amount)
	return wrapTransport(err)
}

func (t *Tab) TypeText(ctx context.Context, text string) error {
	return wrapTransport(t.page.Context(ctx).InsertText(text))
}

func (t *Tab) PressEscape(ctx context.Context) error {
	return wrapTransport(t.page.Context(ctx).Keyboard.Press(input.Escape))
}

func (t *Tab) PressEnter(ctx context.Context) error {
	return wrapTransport(t.page.Context(ctx).Keyboard.Press(input.Enter))
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	html, err := t.page.Context(ctx).HTML()
	if err != nil {
		return "", wrapTransport(err)
	}
	return html, nil
}

func (t *Tab) BodyText(ctx context.Context, limit int) (string, error) {
	return t.EvalString(ctx,
		`(n) => (document.body && document.body.innerText || "").substring(0, n)`, limit)
}

// Close closes the tab.
func (t *Tab) Close() error {
	return t.page.Close()
}

// elem is the rod-backed Element implementation.
type elem struct {
	el *rod.Element
}

var _ Element = (*elem)(nil)

func (e *elem) Query(selector string) (Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, wrapTransport(err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &elem{el: els[0]}, nil
}

func (e *elem) QueryAll(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, wrapTransport(err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &elem{el: el})
	}
	return out, nil
}

func (e *elem) Text() (string, error) {
	txt, err := e.el.Text()
	if err != nil {
		return "", wrapTransport(err)
	}
	return txt, nil
}

func (e *elem) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", wrapTransport(err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *elem) Click() error {
	return wrapTransport(e.el.Click(proto.InputMouseButtonLeft, 1))
}

// ClickScript dispatches a DOM click. Some cards swallow trusted clicks
// behind transparent layers; the DOM click lands regardless.
func (e *elem) ClickScript() error {
	_, err := e.el.Eval(`() => this.click()`)
	return wrapTransport(err)
}

func (e *elem) ScrollIntoView() error {
	return wrapTransport(e.el.ScrollIntoView())
}

func (e *elem) Input(text string) error {
	if err := e.el.SelectAllText(); err == nil {
		// Selected text is replaced by the new input.
		return wrapTransport(e.el.Input(text))
	}
	return wrapTransport(e.el.Input(text))
}

func (e *elem) Visible() bool {
	v, err := e.el.Visible()
	if err != nil {
		return false
	}
	return v
}

func (e *elem) SetFiles(paths ...string) error {
	return wrapTransport(e.el.SetFiles(paths))
}

func (e *elem) HTML() (string, error) {
	html, err := e.el.HTML()
	if err != nil {
		return "", wrapTransport(err)
	}
	return html, nil
}
