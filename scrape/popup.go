package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/extract"
	"github.com/hazyhaar/carnet/selector"
)

// DetailConfig tunes popup scraping.
type DetailConfig struct {
	// OverlayTimeout bounds the wait for the popup to appear after a click.
	OverlayTimeout time.Duration `yaml:"overlay_timeout"`
	// RenderPause runs after the overlay appears, before extraction.
	RenderPause browser.Delay `yaml:"render_pause"`
	// MinBodyLength is the density-fallback acceptance floor.
	MinBodyLength int `yaml:"min_body_length"`
	// RestrictedPhrases mark a note visible only to its author or blocked.
	RestrictedPhrases []string `yaml:"restricted_phrases"`
	// NotFoundPhrases mark a deleted or never-existing note.
	NotFoundPhrases []string `yaml:"not_found_phrases"`

	Logger *slog.Logger `yaml:"-"`
	Sink   EventSink    `yaml:"-"`
}

func (c *DetailConfig) applyDefaults() {
	if c.OverlayTimeout <= 0 {
		c.OverlayTimeout = 5 * time.Second
	}
	if c.RenderPause == (browser.Delay{}) {
		c.RenderPause = browser.Delay{Min: 500 * time.Millisecond, Max: time.Second}
	}
	if c.MinBodyLength <= 0 {
		c.MinBodyLength = 50
	}
	if len(c.RestrictedPhrases) == 0 {
		c.RestrictedPhrases = []string{"当前笔记暂时无法浏览"}
	}
	if len(c.NotFoundPhrases) == 0 {
		c.NotFoundPhrases = []string{"笔记不存在", "内容已被删除", "页面不存在"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
}

// itemPhase tracks how far one note's fetch got; logged, never exported.
type itemPhase string

const (
	phaseScrolling       itemPhase = "scrolling"
	phaseClicking        itemPhase = "clicking"
	phaseAwaitingOverlay itemPhase = "awaiting_overlay"
	phaseExtracting      itemPhase = "extracting"
	phaseClosing         itemPhase = "closing"
)

// bodyTextProbeLimit bounds the error-page phrase scan.
const bodyTextProbeLimit = 4000

// DetailScraper opens one note's detail popup, extracts what it can, and
// always tries to restore the page to its list state afterwards.
type DetailScraper struct {
	cfg  DetailConfig
	res  *selector.Resolver
	log  *slog.Logger
	sink EventSink
}

func NewDetailScraper(cfg DetailConfig, res *selector.Resolver) *DetailScraper {
	cfg.applyDefaults()
	return &DetailScraper{cfg: cfg, res: res, log: cfg.Logger, sink: cfg.Sink}
}

// ScrapeDetail drives one item through its fetch. The record's Status is
// always meaningful on return; the error is non-nil only for transport
// loss, in which case the partially filled record is still returned.
func (s *DetailScraper) ScrapeDetail(ctx context.Context, page browser.Page, summary *SummaryRecord, item browser.Element) (*DetailRecord, error) {
	det := &DetailRecord{Status: StatusUnfetched}
	log := s.log.With("note", summary.ID)

	// Scrolling: best-effort, a hidden item can often still be clicked.
	if err := item.ScrollIntoView(); err != nil {
		if browser.IsTargetClosed(err) {
			return det, err
		}
		log.Debug("scroll into view failed", "phase", phaseScrolling, "err", err)
	}

	clicked, err := s.click(item, log)
	if err != nil {
		return det, err
	}
	if !clicked {
		det.Err = "item not clickable"
		log.Debug("skipping item", "phase", phaseClicking, "err", det.Err)
		return det, nil
	}

	overlay, err := s.awaitOverlay(ctx, page)
	if err != nil {
		return det, err
	}
	if overlay == nil {
		// Escape anyway: the click may have half-opened something.
		det.Err = "detail popup did not appear"
		log.Debug("overlay timeout", "phase", phaseAwaitingOverlay)
		emit(s.sink, "detail_overlay_timeout", map[string]any{"note": summary.ID})
		return det, s.Close(ctx, page)
	}
	if err := s.cfg.RenderPause.Sleep(ctx); err != nil {
		return det, err
	}

	if status, phrase, err := s.scanErrorPage(ctx, page); err != nil {
		return det, err
	} else if phrase != "" {
		det.Status = status
		det.Err = phrase
		emit(s.sink, "detail_blocked", map[string]any{"note": summary.ID, "status": status.String()})
		return det, s.Close(ctx, page)
	}

	if err := s.extractDetail(ctx, page, det); err != nil {
		if browser.IsTargetClosed(err) {
			return det, err
		}
		det.Status = StatusError
		det.Err = err.Error()
		log.Debug("extraction degraded", "phase", phaseExtracting, "err", err)
		emit(s.sink, "detail_error", map[string]any{"note": summary.ID, "err": err.Error()})
		return det, s.Close(ctx, page)
	}
	det.Status = StatusOK
	log.Debug("detail extracted", "phase", phaseExtracting, "body_len", len(det.Body), "tags", len(det.Tags))

	return det, s.Close(ctx, page)
}

// click tries the cover sub-element first, falling back to the item root,
// and for each target tries a native click then a script click.
func (s *DetailScraper) click(item browser.Element, log *slog.Logger) (bool, error) {
	target, err := s.res.Resolve(item, "search", "note_cover")
	if err != nil {
		return false, err
	}
	if target == nil {
		target = item
	}

	for _, el := range []browser.Element{target, item} {
		if err := el.Click(); err == nil {
			return true, nil
		} else if browser.IsTargetClosed(err) {
			return false, err
		}
		if err := el.ClickScript(); err == nil {
			return true, nil
		} else if browser.IsTargetClosed(err) {
			return false, err
		} else {
			log.Debug("click failed", "phase", phaseClicking, "err", err)
		}
		if el == item {
			break
		}
	}
	return false, nil
}

func (s *DetailScraper) awaitOverlay(ctx context.Context, page browser.Page) (browser.Element, error) {
	var sels []string
	for _, field := range []string{"popup_mask", "popup_container", "note_scroller"} {
		sels = append(sels, s.res.Candidates("note_detail", field)...)
	}
	return page.WaitForAny(ctx, sels, s.cfg.OverlayTimeout)
}

// scanErrorPage looks for blocked/deleted phrases in the visible text.
// The phrase return is empty when the page looks healthy.
func (s *DetailScraper) scanErrorPage(ctx context.Context, page browser.Page) (Status, string, error) {
	text, err := page.BodyText(ctx, bodyTextProbeLimit)
	if err != nil {
		if browser.IsTargetClosed(err) {
			return StatusUnfetched, "", err
		}
		return StatusUnfetched, "", nil
	}
	for _, p := range s.cfg.NotFoundPhrases {
		if strings.Contains(text, p) {
			return StatusNotFound, p, nil
		}
	}
	for _, p := range s.cfg.RestrictedPhrases {
		if strings.Contains(text, p) {
			return StatusRestricted, p, nil
		}
	}
	return StatusUnfetched, "", nil
}

// extractDetail fills det from the open popup. A transport error aborts;
// any other returned error means the content element was present but
// unreadable and no fallback recovered a body, which degrades the item to
// StatusError at the call site.
func (s *DetailScraper) extractDetail(ctx context.Context, page browser.Page, det *DetailRecord) error {
	det.DetailURL = page.URL()

	title, err := s.res.Text(page, "note_detail", "title", "")
	if err != nil {
		return err
	}
	det.Title = title

	var readErr error
	content, err := s.res.Resolve(page, "note_detail", "content")
	if err != nil {
		return err
	}
	if content != nil {
		txt, err := content.Text()
		switch {
		case err == nil:
			det.Body = strings.TrimSpace(txt)
		case browser.IsTargetClosed(err):
			return err
		default:
			readErr = err
		}
		if html, err := content.HTML(); err == nil {
			det.BodyHTML = html
		} else if browser.IsTargetClosed(err) {
			return err
		}
	}
	if det.Body == "" {
		html, err := page.HTML(ctx)
		if err != nil {
			if browser.IsTargetClosed(err) {
				return err
			}
		} else if body, ok := extract.Body(html, s.cfg.MinBodyLength); ok {
			det.Body = body
		}
	}

	for field, dst := range map[string]*string{
		"like_count":    &det.LikeCount,
		"collect_count": &det.CollectCount,
		"comment_count": &det.CommentCount,
	} {
		v, err := s.res.Text(page, "note_detail", field, defaultCount)
		if err != nil {
			return err
		}
		*dst = v
	}
	for field, dst := range map[string]*string{
		"publish_time": &det.PublishTime,
		"author_name":  &det.Author,
	} {
		v, err := s.res.Text(page, "note_detail", field, "")
		if err != nil {
			return err
		}
		*dst = v
	}

	tagEls, err := s.res.ResolveAll(page, "note_detail", "tags")
	if err != nil {
		return err
	}
	det.Tags = normalizeTags(tagEls)

	if det.Body == "" && readErr != nil {
		return fmt.Errorf("content read: %w", readErr)
	}
	return nil
}

// normalizeTags dedups and '#'-prefixes tag texts, preserving order.
func normalizeTags(els []browser.Element) []string {
	var tags []string
	seen := map[string]bool{}
	for _, el := range els {
		text := strings.TrimSpace(selector.ElementText(el, ""))
		text = strings.TrimLeft(text, "#")
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		tags = append(tags, "#"+text)
	}
	return tags
}

// Close dismisses the detail popup: close control first, then Escape if
// the mask is still up. It never fails the item; only transport loss is
// an error.
func (s *DetailScraper) Close(ctx context.Context, page browser.Page) error {
	if btn, err := s.res.Resolve(page, "note_detail", "close_button"); err != nil {
		return err
	} else if btn != nil {
		if err := btn.Click(); err != nil {
			if browser.IsTargetClosed(err) {
				return err
			}
			if err := btn.ClickScript(); err != nil && browser.IsTargetClosed(err) {
				return err
			}
		}
	}

	mask, err := s.res.Resolve(page, "note_detail", "popup_mask")
	if err != nil {
		return err
	}
	if mask != nil {
		s.log.Debug("popup still open, sending escape", "phase", phaseClosing)
		if err := page.PressEscape(ctx); err != nil && browser.IsTargetClosed(err) {
			return err
		}
	}
	return nil
}
