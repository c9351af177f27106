package scrape

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/selector"
)

// PipelineConfig tunes the summary→detail enrichment loop.
type PipelineConfig struct {
	// ItemPause waits between items.
	ItemPause browser.Delay `yaml:"item_pause"`

	Logger *slog.Logger `yaml:"-"`
	Sink   EventSink    `yaml:"-"`
}

func (c *PipelineConfig) applyDefaults() {
	if c.ItemPause == (browser.Delay{}) {
		c.ItemPause = browser.Delay{Min: time.Second, Max: 3 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
}

// Pipeline enriches a list of summaries with popup detail. Element handles
// captured during list collection go stale after every popup open/close, so
// each item is re-acquired from the live DOM just before its fetch.
type Pipeline struct {
	cfg    PipelineConfig
	res    *selector.Resolver
	detail *DetailScraper
	log    *slog.Logger
	sink   EventSink
}

func NewPipeline(cfg PipelineConfig, res *selector.Resolver, detail *DetailScraper) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{cfg: cfg, res: res, detail: detail, log: cfg.Logger, sink: cfg.Sink}
}

// Run fetches detail for every summary in place and returns the batch
// tally. A summary that cannot be matched to a live item is skipped, never
// fatal. Transport loss aborts the remaining loop and returns the partial
// batch together with the error.
func (p *Pipeline) Run(ctx context.Context, page browser.Page, summaries []*SummaryRecord) (*BatchResult, error) {
	batch := &BatchResult{StartedAt: time.Now(), Records: summaries}

	for i, sum := range summaries {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		item, strategy, err := p.acquire(sum, page, i)
		if err != nil {
			return batch, err
		}
		if item == nil {
			sum.Detail.Status = StatusUnfetched
			sum.Detail.Err = "live item not found"
			batch.Count(sum)
			emit(p.sink, "item_skipped", map[string]any{"note": sum.ID, "index": i})
			continue
		}

		det, err := p.detail.ScrapeDetail(ctx, page, sum, item)
		sum.Detail.Merge(det)
		// The popup title is authoritative; the list pass may only have had
		// a truncated card label or the placeholder default.
		if sum.Detail.Title != "" {
			sum.Title = sum.Detail.Title
		}
		batch.Count(sum)
		emit(p.sink, "item_done", map[string]any{
			"note": sum.ID, "index": i, "status": sum.Detail.Status.String(), "strategy": strategy,
		})
		if err != nil {
			return batch, err
		}

		if err := p.cfg.ItemPause.Sleep(ctx); err != nil {
			return batch, err
		}
	}
	return batch, nil
}

// acquire matches a summary to a live feed item, trying strategies in
// fixed order: exact URL, then title, then positional index.
func (p *Pipeline) acquire(sum *SummaryRecord, page browser.Page, index int) (browser.Element, string, error) {
	items, err := p.res.ResolveAll(page, "search", "note_item")
	if err != nil {
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", nil
	}

	strategies := []struct {
		name string
		find func(items []browser.Element) (browser.Element, error)
	}{
		{"byURL", func(items []browser.Element) (browser.Element, error) { return p.findByURL(items, sum) }},
		{"byTitle", func(items []browser.Element) (browser.Element, error) { return p.findByTitle(items, sum) }},
		{"byIndex", func(items []browser.Element) (browser.Element, error) {
			if index < len(items) {
				return items[index], nil
			}
			return nil, nil
		}},
	}
	for _, st := range strategies {
		el, err := st.find(items)
		if err != nil {
			return nil, "", err
		}
		if el != nil {
			return el, st.name, nil
		}
	}
	return nil, "", nil
}

func (p *Pipeline) findByURL(items []browser.Element, sum *SummaryRecord) (browser.Element, error) {
	if sum.URL == "" {
		return nil, nil
	}
	want, err := NormalizeNoteURL(sum.URL)
	if err != nil {
		want = sum.URL
	}
	for _, item := range items {
		link, err := p.res.Resolve(item, "search", "note_link")
		if err != nil {
			return nil, err
		}
		if link == nil {
			continue
		}
		href := selector.ElementAttr(link, "href", "")
		if href == "" {
			continue
		}
		if norm, err := NormalizeNoteURL(href); err == nil && norm == want {
			return item, nil
		}
		// Relative hrefs still carry the note ID path segment.
		if sum.ID != "" && strings.Contains(href, sum.ID) {
			return item, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) findByTitle(items []browser.Element, sum *SummaryRecord) (browser.Element, error) {
	if sum.Title == "" || sum.Title == defaultTitle {
		return nil, nil
	}
	for _, item := range items {
		title, err := p.res.Text(item, "search", "note_title", "")
		if err != nil {
			return nil, err
		}
		if title != "" && (title == sum.Title || strings.Contains(title, sum.Title)) {
			return item, nil
		}
	}
	return nil, nil
}
