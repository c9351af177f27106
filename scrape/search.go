package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/selector"
	"github.com/hazyhaar/carnet/session"
)

var ErrLoginRequired = errors.New("scrape: login required")

// SortBy orders search results.
type SortBy string

const (
	SortGeneral SortBy = "general"
	SortHot     SortBy = "hot"
	SortNewest  SortBy = "new"
)

var sortLabels = map[SortBy]string{
	SortHot:    "最热",
	SortNewest: "最新",
}

// clickFilterOption clicks the dropdown entry whose text equals label.
// Selector resolution cannot pick an option by its text, so this one goes
// through JS.
const clickFilterOption = `(label) => {
	const items = document.querySelectorAll(
		'.filter-panel span, .dropdown-items span, .dropdown-container span');
	for (const el of items) {
		if ((el.textContent || '').trim() === label) { el.click(); return true; }
	}
	return false;
}`

// SearchConfig tunes search navigation.
type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
	// LoginTimeout bounds the in-flow login wait.
	LoginTimeout time.Duration `yaml:"login_timeout"`
	// SettlePause runs after navigation and after each filter click.
	SettlePause browser.Delay `yaml:"settle_pause"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *SearchConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.xiaohongshu.com"
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 3 * time.Minute
	}
	if c.SettlePause == (browser.Delay{}) {
		c.SettlePause = browser.Delay{Min: time.Second, Max: 2 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Searcher lands a page on keyword results, logged in and sorted.
type Searcher struct {
	cfg  SearchConfig
	res  *selector.Resolver
	gate *session.Gate
	log  *slog.Logger
}

func NewSearcher(cfg SearchConfig, res *selector.Resolver, gate *session.Gate) *Searcher {
	cfg.applyDefaults()
	return &Searcher{cfg: cfg, res: res, gate: gate, log: cfg.Logger}
}

// Search navigates to the keyword's result page, passes the login gate,
// and applies the sort filter. Returns ErrLoginRequired when the user
// never completed the login.
func (s *Searcher) Search(ctx context.Context, page browser.Page, keyword string, sort SortBy) error {
	if keyword == "" {
		return fmt.Errorf("%w: empty keyword", ErrInvalidInput)
	}

	target := s.cfg.BaseURL + "/search_result?keyword=" + url.QueryEscape(keyword)
	if err := page.Goto(ctx, target); err != nil {
		return err
	}
	if err := s.cfg.SettlePause.Sleep(ctx); err != nil {
		return err
	}

	ok, err := s.gate.EnsureLogin(ctx, page, session.Options{Timeout: s.cfg.LoginTimeout})
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoginRequired
	}

	// The gate may have reloaded onto the home page.
	if page.URL() != target {
		if err := page.Goto(ctx, target); err != nil {
			return err
		}
		if err := s.cfg.SettlePause.Sleep(ctx); err != nil {
			return err
		}
	}

	if label, filtered := sortLabels[sort]; filtered {
		if err := s.applySort(ctx, page, label); err != nil {
			return err
		}
	}
	return nil
}

func (s *Searcher) applySort(ctx context.Context, page browser.Page, label string) error {
	btn, err := s.res.Resolve(page, "search", "filter_button")
	if err != nil {
		return err
	}
	if btn == nil {
		s.log.Warn("filter control not found, keeping default sort")
		return nil
	}
	if err := btn.Click(); err != nil {
		if browser.IsTargetClosed(err) {
			return err
		}
		if err := btn.ClickScript(); err != nil && browser.IsTargetClosed(err) {
			return err
		}
	}
	if err := s.cfg.SettlePause.Sleep(ctx); err != nil {
		return err
	}

	hit, err := page.EvalBool(ctx, clickFilterOption, label)
	if err != nil {
		if browser.IsTargetClosed(err) {
			return err
		}
		s.log.Warn("sort filter eval failed", "err", err)
		return nil
	}
	if !hit {
		s.log.Warn("sort option not found", "label", label)
		return nil
	}
	return s.cfg.SettlePause.Sleep(ctx)
}
