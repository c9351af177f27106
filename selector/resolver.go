package selector

import (
	"log/slog"
	"strings"

	"github.com/hazyhaar/carnet/browser"
)

// Resolver resolves logical fields against a live DOM root. Candidates are
// never cached across calls: the DOM can be rebuilt between any two queries,
// so every resolution starts from the configured priority order.
//
// A field that matches nothing resolves to nil, not to an error; callers
// substitute a field-specific default and move on. Retries belong to the
// callers that know their latency budget, not here.
type Resolver struct {
	spec Spec
	log  *slog.Logger
}

// NewResolver creates a Resolver over a validated catalogue.
func NewResolver(spec Spec, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{spec: spec, log: log}
}

// Candidates returns the configured fallback chain for scope.field,
// or nil when the field is not registered.
func (r *Resolver) Candidates(scope, field string) []string {
	fields, ok := r.spec[scope]
	if !ok {
		return nil
	}
	return fields[field]
}

// Resolve returns the first element matched by any candidate of scope.field
// under root, in configured order. (nil, nil) means the field is absent.
// The only error ever returned is transport loss.
func (r *Resolver) Resolve(root browser.Queryable, scope, field string) (browser.Element, error) {
	for _, sel := range r.Candidates(scope, field) {
		el, err := root.Query(sel)
		if err != nil {
			if browser.IsTargetClosed(err) {
				return nil, err
			}
			// A candidate the current engine rejects (bad syntax after a
			// catalogue edit) must not mask the remaining candidates.
			r.log.Debug("selector: candidate query failed",
				"scope", scope, "field", field, "selector", sel, "error", err)
			continue
		}
		if el != nil {
			return el, nil
		}
	}
	return nil, nil
}

// ResolveAll returns every element matched by the first candidate of
// scope.field that matches at least one. An empty result means absent.
func (r *Resolver) ResolveAll(root browser.Queryable, scope, field string) ([]browser.Element, error) {
	for _, sel := range r.Candidates(scope, field) {
		els, err := root.QueryAll(sel)
		if err != nil {
			if browser.IsTargetClosed(err) {
				return nil, err
			}
			r.log.Debug("selector: candidate query failed",
				"scope", scope, "field", field, "selector", sel, "error", err)
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, nil
}

// Text resolves scope.field and returns its trimmed text, or def when the
// field is absent or unreadable.
func (r *Resolver) Text(root browser.Queryable, scope, field, def string) (string, error) {
	el, err := r.Resolve(root, scope, field)
	if err != nil {
		return def, err
	}
	return ElementText(el, def), nil
}

// ElementText extracts trimmed text from el, substituting def for nil
// elements, read failures, and empty text.
func ElementText(el browser.Element, def string) string {
	if el == nil {
		return def
	}
	txt, err := el.Text()
	if err != nil {
		return def
	}
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return def
	}
	return txt
}

// ElementAttr extracts a trimmed attribute from el with the same defaulting
// rules as ElementText.
func ElementAttr(el browser.Element, name, def string) string {
	if el == nil {
		return def
	}
	v, err := el.Attr(name)
	if err != nil {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
