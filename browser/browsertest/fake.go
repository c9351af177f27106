// Package browsertest provides in-memory Page and Element fakes so the
// extraction engine's state machines can be tested without a browser.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/carnet/browser"
)

// Element is a scriptable browser.Element.
type Element struct {
	TextValue  string
	TextErr    error
	HTMLValue  string
	Attrs      map[string]string
	Children   map[string][]*Element // selector → matches
	IsVisible  bool
	ClickErr   error
	ScriptErr  error
	InputErr   error
	ScrollErr  error
	Clicks     int
	ScriptHits int
	Inputs     []string
	Files      []string
	// OnClick runs after a successful Click or ClickScript, letting tests
	// mutate page state in reaction (open a popup, rebuild the list).
	OnClick func()
}

var _ browser.Element = (*Element)(nil)

func (e *Element) Query(selector string) (browser.Element, error) {
	els := e.Children[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (e *Element) QueryAll(selector string) ([]browser.Element, error) {
	els := e.Children[selector]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (e *Element) Text() (string, error) {
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.TextValue, nil
}

func (e *Element) Attr(name string) (string, error) {
	return e.Attrs[name], nil
}

func (e *Element) Click() error {
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks++
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) ClickScript() error {
	if e.ScriptErr != nil {
		return e.ScriptErr
	}
	e.ScriptHits++
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) ScrollIntoView() error { return e.ScrollErr }

func (e *Element) Input(text string) error {
	if e.InputErr != nil {
		return e.InputErr
	}
	e.Inputs = append(e.Inputs, text)
	return nil
}

func (e *Element) Visible() bool { return e.IsVisible }

func (e *Element) HTML() (string, error) { return e.HTMLValue, nil }

func (e *Element) SetFiles(paths ...string) error {
	e.Files = append(e.Files, paths...)
	return nil
}

// Page is a scriptable browser.Page. The Matches map drives every query;
// hooks let tests mutate it in reaction to scrolls, reloads, and clicks.
type Page struct {
	mu sync.Mutex

	URLValue  string
	Matches   map[string][]*Element // selector → matches
	HTMLValue string
	BodyTextValue string
	CookieList  []browser.Cookie

	// Err, once set, is returned from every operation. Tests use it with a
	// transport-shaped message to simulate "browser closed mid-run".
	Err error

	EvalBoolFn   func(js string, args ...any) (bool, error)
	EvalStringFn func(js string, args ...any) (string, error)

	Navigations []string
	Reloads     int
	Scrolls     int
	Escapes     int
	Enters      int
	Typed       []string

	OnScroll func(p *Page)
	OnReload func(p *Page)
	OnGoto   func(p *Page, url string)
}

var _ browser.Page = (*Page)(nil)

// SetMatches replaces the matches for one selector. Safe to call from hooks.
func (p *Page) SetMatches(selector string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Matches == nil {
		p.Matches = map[string][]*Element{}
	}
	p.Matches[selector] = els
}

func (p *Page) lookup(selector string) []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Matches[selector]
}

func (p *Page) Query(selector string) (browser.Element, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	els := p.lookup(selector)
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (p *Page) QueryAll(selector string) ([]browser.Element, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	els := p.lookup(selector)
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if p.Err != nil {
		return p.Err
	}
	p.Navigations = append(p.Navigations, url)
	p.URLValue = url
	if p.OnGoto != nil {
		p.OnGoto(p, url)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if p.Err != nil {
		return p.Err
	}
	p.Reloads++
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *Page) URL() string { return p.URLValue }

// WaitForAny checks the current matches once; fakes have no render latency.
func (p *Page) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (browser.Element, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	for _, sel := range selectors {
		if els := p.lookup(sel); len(els) > 0 {
			return els[0], nil
		}
	}
	return nil, nil
}

func (p *Page) EvalBool(ctx context.Context, js string, args ...any) (bool, error) {
	if p.Err != nil {
		return false, p.Err
	}
	if p.EvalBoolFn != nil {
		return p.EvalBoolFn(js, args...)
	}
	return false, nil
}

func (p *Page) EvalString(ctx context.Context, js string, args ...any) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if p.EvalStringFn != nil {
		return p.EvalStringFn(js, args...)
	}
	return "", nil
}

func (p *Page) Cookies(ctx context.Context, originURL string) ([]browser.Cookie, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.CookieList, nil
}

func (p *Page) ScrollBy(ctx context.Context, amount int) error {
	if p.Err != nil {
		return p.Err
	}
	p.Scrolls++
	if p.OnScroll != nil {
		p.OnScroll(p)
	}
	return nil
}

func (p *Page) TypeText(ctx context.Context, text string) error {
	if p.Err != nil {
		return p.Err
	}
	p.Typed = append(p.Typed, text)
	return nil
}

func (p *Page) PressEscape(ctx context.Context) error {
	if p.Err != nil {
		return p.Err
	}
	p.Escapes++
	return nil
}

func (p *Page) PressEnter(ctx context.Context) error {
	if p.Err != nil {
		return p.Err
	}
	p.Enters++
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.HTMLValue, nil
}

func (p *Page) BodyText(ctx context.Context, limit int) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if limit > 0 && limit < len(p.BodyTextValue) {
		return p.BodyTextValue[:limit], nil
	}
	return p.BodyTextValue, nil
}

// TypedJoined returns everything typed so far as one string.
func (p *Page) TypedJoined() string { return strings.Join(p.Typed, "") }
