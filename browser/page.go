// Package browser manages the Chrome lifecycle and exposes the page
// capability the scraping engine is built against: navigation, element
// query, click, type, script evaluation, cookies, scrolling.
//
// Everything above this package talks to the Page and Element interfaces,
// never to rod directly, so the extraction engine can be exercised against
// in-memory fakes.
package browser

import (
	"context"
	"time"
)

// Cookie is a browser cookie scoped to a domain.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Queryable is the query subset shared by Page and Element. Selector
// resolution works against any DOM root.
type Queryable interface {
	// Query returns the first element matching selector, or nil when the
	// selector matches nothing. Absence is not an error.
	Query(selector string) (Element, error)

	// QueryAll returns every element matching selector. An empty result
	// is not an error.
	QueryAll(selector string) ([]Element, error)
}

// Element is a live DOM element handle. Handles do not survive navigation,
// reload, or popup open/close cycles; callers re-query after any of those.
type Element interface {
	Queryable

	// Text returns the element's visible text content.
	Text() (string, error)

	// Attr returns the named attribute, or "" when absent.
	Attr(name string) (string, error)

	// Click performs a trusted mouse click.
	Click() error

	// ClickScript clicks via injected script. Fallback for elements that
	// reject synthetic mouse events or are covered by other layers.
	ClickScript() error

	// ScrollIntoView brings the element into the viewport.
	ScrollIntoView() error

	// Input replaces the element's value with text.
	Input(text string) error

	// Visible reports whether the element is rendered and on screen.
	Visible() bool
	HTML() (string, error)
	SetFiles(paths ...string) error
}

// Page is one browser tab. All operations are issued sequentially against
// a single page; there is no concurrent use of one Page.
type Page interface {
	Queryable

	// Goto navigates to url and waits for the load event (best effort).
	Goto(ctx context.Context, url string) error

	// Reload reloads the current page. Element handles become stale.
	Reload(ctx context.Context) error

	// URL returns the current page URL, or "" when unavailable.
	URL() string

	// WaitForAny waits until any of the selectors matches, bounded by
	// timeout. Returns nil (not an error) when none appeared in time.
	WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (Element, error)

	// EvalBool runs a JS function expression and returns its boolean result.
	EvalBool(ctx context.Context, js string, args ...any) (bool, error)

	// EvalString runs a JS function expression and returns its string result.
	EvalString(ctx context.Context, js string, args ...any) (string, error)

	// Cookies returns cookies scoped to the given origin URL.
	Cookies(ctx context.Context, originURL string) ([]Cookie, error)

	// ScrollBy scrolls the window vertically by amount pixels.
	ScrollBy(ctx context.Context, amount int) error

	// TypeText types text at the current focus, as keyboard input.
	TypeText(ctx context.Context, text string) error

	// PressEscape sends the Escape key to the page.
	PressEscape(ctx context.Context) error

	// PressEnter sends the Enter key to the page.
	PressEnter(ctx context.Context) error

	// HTML returns the full document markup.
	HTML(ctx context.Context) (string, error)

	// BodyText returns up to limit characters of the body's visible text.
	BodyText(ctx context.Context, limit int) (string, error)
}
