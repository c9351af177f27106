package scrape

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/selector"
)

const (
	defaultTitle = "无标题"
	defaultCount = "0"
)

// ListConfig tunes feed collection.
type ListConfig struct {
	// BaseURL absolutizes relative note links.
	BaseURL string `yaml:"base_url"`
	// MaxScrollAttempts bounds the scroll loop regardless of target.
	MaxScrollAttempts int `yaml:"max_scroll_attempts"`
	// ScrollAmount is pixels per scroll step.
	ScrollAmount int `yaml:"scroll_amount"`
	// ScrollPause waits between a scroll and the next extraction pass,
	// giving lazy-loaded items time to render.
	ScrollPause browser.Delay `yaml:"scroll_pause"`

	Logger *slog.Logger `yaml:"-"`
	Sink   EventSink    `yaml:"-"`
}

func (c *ListConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.xiaohongshu.com"
	}
	if c.MaxScrollAttempts <= 0 {
		c.MaxScrollAttempts = 20
	}
	if c.ScrollAmount <= 0 {
		c.ScrollAmount = 600
	}
	if c.ScrollPause == (browser.Delay{}) {
		c.ScrollPause = browser.Delay{Min: time.Second, Max: 2 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
}

// staleScrollLimit stops the loop after this many consecutive scrolls that
// surfaced no new record; the feed has ended.
const staleScrollLimit = 3

// ListScraper walks a result feed and collects deduplicated summaries.
type ListScraper struct {
	cfg  ListConfig
	res  *selector.Resolver
	log  *slog.Logger
	sink EventSink
}

func NewListScraper(cfg ListConfig, res *selector.Resolver) *ListScraper {
	cfg.applyDefaults()
	return &ListScraper{cfg: cfg, res: res, log: cfg.Logger, sink: cfg.Sink}
}

// Collect gathers up to target summaries, scrolling between passes. On
// transport loss it returns the partials collected so far together with
// the error, so a dying browser never costs prior work.
func (s *ListScraper) Collect(ctx context.Context, page browser.Page, target int) ([]*SummaryRecord, error) {
	seen := map[string]int{}
	var out []*SummaryRecord
	stale := 0

	for scrolls := 0; ; scrolls++ {
		items, err := s.res.ResolveAll(page, "search", "note_item")
		if err != nil {
			return out, err
		}

		added := 0
		for _, item := range items {
			rec, err := s.extractSummary(item)
			if err != nil {
				return out, err
			}
			key := recordKey(rec.Title, rec.URL)
			if idx, dup := seen[key]; dup {
				out[idx] = rec
				continue
			}
			seen[key] = len(out)
			out = append(out, rec)
			added++
		}
		emit(s.sink, "list_pass", map[string]any{
			"pass": scrolls, "visible": len(items), "new": added, "total": len(out),
		})

		if target > 0 && len(out) >= target {
			break
		}
		if added == 0 {
			stale++
			if stale >= staleScrollLimit {
				s.log.Debug("feed exhausted", "collected", len(out), "scrolls", scrolls)
				break
			}
		} else {
			stale = 0
		}
		if scrolls >= s.cfg.MaxScrollAttempts {
			s.log.Debug("scroll budget spent", "collected", len(out))
			break
		}

		if err := page.ScrollBy(ctx, s.cfg.ScrollAmount); err != nil {
			return out, err
		}
		if err := s.cfg.ScrollPause.Sleep(ctx); err != nil {
			return out, err
		}
	}

	if target > 0 && len(out) > target {
		out = out[:target]
	}
	return out, nil
}

func (s *ListScraper) extractSummary(item browser.Element) (*SummaryRecord, error) {
	title, err := s.res.Text(item, "search", "note_title", defaultTitle)
	if err != nil {
		return nil, err
	}
	like, err := s.res.Text(item, "search", "note_like_count", defaultCount)
	if err != nil {
		return nil, err
	}

	var rawURL string
	link, err := s.res.Resolve(item, "search", "note_link")
	if err != nil {
		return nil, err
	}
	if link != nil {
		rawURL = selector.ElementAttr(link, "href", "")
	}
	if strings.HasPrefix(rawURL, "/") {
		rawURL = strings.TrimRight(s.cfg.BaseURL, "/") + rawURL
	}

	return &SummaryRecord{
		ID:         noteID(title, rawURL),
		Title:      title,
		URL:        rawURL,
		LikeCount:  like,
		CapturedAt: time.Now(),
		Detail:     DetailRecord{Status: StatusUnfetched},
	}, nil
}
