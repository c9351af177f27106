// Package selector resolves logical field names to live DOM elements
// through ordered candidate fallback chains.
//
// The platform ships no stable markup contract: class names rotate between
// deploys. Each logical field (note_title, like_count, ...) therefore maps
// to several candidate CSS queries tried in priority order, and the whole
// catalogue lives in a data file so UI drift is a data change, not a
// rebuild.
package selector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec maps scope name → field name → ordered candidate selectors.
// Scopes group fields by surface: search, note_detail, explore, trending,
// publish.
type Spec map[string]Scope

// Scope is one surface's field catalogue.
type Scope map[string][]string

// Load reads a catalogue from a YAML file and validates it.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("selector: read %s: %w", path, err)
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("selector: parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces the catalogue invariant: every registered field carries
// at least one candidate.
func (s Spec) Validate() error {
	for scope, fields := range s {
		for field, candidates := range fields {
			if len(candidates) == 0 {
				return fmt.Errorf("selector: %s.%s has no candidates", scope, field)
			}
			for _, c := range candidates {
				if c == "" {
					return fmt.Errorf("selector: %s.%s has an empty candidate", scope, field)
				}
			}
		}
	}
	return nil
}

// Merge overlays other onto s field by field. Fields present in other
// replace the whole candidate list; everything else is kept. Used to apply
// a partial user catalogue over the built-in defaults.
func (s Spec) Merge(other Spec) Spec {
	out := make(Spec, len(s))
	for scope, fields := range s {
		cp := make(Scope, len(fields))
		for f, c := range fields {
			cp[f] = append([]string(nil), c...)
		}
		out[scope] = cp
	}
	for scope, fields := range other {
		if _, ok := out[scope]; !ok {
			out[scope] = make(Scope, len(fields))
		}
		for f, c := range fields {
			out[scope][f] = append([]string(nil), c...)
		}
	}
	return out
}

// Default returns the built-in catalogue, current as of the platform's
// markup at the time of writing. Deploy drift is handled by shipping an
// override file, not by editing this table.
func Default() Spec {
	return Spec{
		"session": Scope{
			"identity":     {".user.side-bar-component .channel", ".side-bar .user .name", "li.user .link-wrapper .channel"},
			"login_button": {".login-btn", "#login-btn", "button.login-btn", ".side-bar .login-btn"},
		},
		"search": Scope{
			"note_item":       {"section.note-item", "div.note-item", ".feeds-container section"},
			"note_link":       {"a"},
			"note_title":      {"a.title span", "a.title", ".title span", ".title"},
			"note_like_count": {".like-wrapper .count", "span.count", ".count"},
			"note_cover":      {"a.cover", "a", ".cover"},
			"search_input":    {"#search-input", "input.search-input"},
			"filter_button":   {"div.filter"},
			"filter_panel":    {"div.filter-panel"},
		},
		"note_detail": Scope{
			"popup_mask":      {".note-detail-mask"},
			"popup_container": {"#noteContainer", ".note-container"},
			"note_scroller":   {".note-scroller"},
			"title":           {"#detail-title", ".note-content .title"},
			"content":         {"#detail-desc .note-text", "#detail-desc", ".note-content .desc"},
			"like_count":      {".engage-bar .like-wrapper .count", ".like-wrapper .count"},
			"collect_count":   {".engage-bar .collect-wrapper .count", ".collect-wrapper .count"},
			"comment_count":   {".engage-bar .chat-wrapper .count", ".chat-wrapper .count"},
			"tags":            {"#detail-desc a.tag", "a.tag"},
			"publish_time":    {".bottom-container .date", ".date"},
			"author_name":     {".author-wrapper .username", ".username", ".nickname"},
			"close_button":    {"div.close-box", ".close-circle", ".close"},
		},
		"explore": Scope{
			"topic_card":       {".topic-card", ".channel-item", ".category-item"},
			"topic_name":       {".topic-name", ".channel-name", ".title", "span"},
			"topic_view_count": {".view-count", ".count", ".desc"},
		},
		"trending": Scope{
			"hot_search_item": {".trending-item", ".hot-item", ".search-trending-item", ".hot-list-item", ".hot-word"},
			"hot_search_name": {".title", ".name", ".word", "span", "a"},
			"hot_search_rank": {".rank", ".index", ".num"},
			"hot_search_heat": {".hot-score", ".heat", ".score", ".count"},
		},
		"publish": Scope{
			"title_input":       {"input.d-text[placeholder*='标题']", "input[placeholder*='标题']", ".title-input input"},
			"content_input":     {"div.ql-editor", "#quillEditor .ql-editor", "div[contenteditable='true']"},
			"tag_suggestion":    {".mention-item", ".topic-item", ".publish-topic-item"},
			"cover_upload":      {"input[type='file']", ".upload-input input"},
			"publish_button":    {"button.publishBtn", "button.submit", ".submit button"},
			"draft_button":      {"button.draftBtn", ".draft button", "button.cancelBtn"},
			"confirm_dialog_ok": {".d-modal button.d-button-primary", ".dialog-confirm", "button.confirm"},
		},
	}
}
