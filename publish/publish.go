// Package publish drives the creator-studio editor to post or draft a
// note. Text goes in keystroke by keystroke with randomized pacing; bulk
// insertion is what gets editor sessions flagged.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/selector"
)

var ErrEditorNotFound = errors.New("publish: editor control not found")

// Draft is one note ready for the editor.
type Draft struct {
	Title     string
	Body      string
	Tags      []string
	CoverPath string
	// AsDraft saves without publishing.
	AsDraft bool
}

// Config tunes the editor automation.
type Config struct {
	PublishURL string `yaml:"publish_url"`
	// CharDelay paces individual keystrokes.
	CharDelay browser.Delay `yaml:"char_delay"`
	// ActionPause separates editor interactions.
	ActionPause browser.Delay `yaml:"action_pause"`
	// UploadWait gives the cover upload time to complete.
	UploadWait browser.Delay `yaml:"upload_wait"`
	// ReviewPause is the window before the final button press, letting a
	// watching user abort.
	ReviewPause time.Duration `yaml:"review_pause"`
	// ControlTimeout bounds waits for editor controls to render.
	ControlTimeout time.Duration `yaml:"control_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.PublishURL == "" {
		c.PublishURL = "https://creator.xiaohongshu.com/publish/publish"
	}
	if c.CharDelay == (browser.Delay{}) {
		c.CharDelay = browser.Delay{Min: 20 * time.Millisecond, Max: 100 * time.Millisecond}
	}
	if c.ActionPause == (browser.Delay{}) {
		c.ActionPause = browser.Delay{Min: time.Second, Max: 2 * time.Second}
	}
	if c.UploadWait == (browser.Delay{}) {
		c.UploadWait = browser.Delay{Min: 3 * time.Second, Max: 5 * time.Second}
	}
	if c.ReviewPause == 0 {
		c.ReviewPause = 3 * time.Second
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Publisher fills and submits the note editor.
type Publisher struct {
	cfg Config
	res *selector.Resolver
	log *slog.Logger
}

func NewPublisher(cfg Config, res *selector.Resolver) *Publisher {
	cfg.applyDefaults()
	return &Publisher{cfg: cfg, res: res, log: cfg.Logger}
}

// Publish fills the editor from the draft and presses publish (or the
// draft button). The page must already be logged in.
func (p *Publisher) Publish(ctx context.Context, page browser.Page, draft Draft) error {
	if draft.Title == "" || draft.Body == "" {
		return fmt.Errorf("publish: draft needs a title and a body")
	}

	if err := page.Goto(ctx, p.cfg.PublishURL); err != nil {
		return err
	}
	if err := p.cfg.ActionPause.Sleep(ctx); err != nil {
		return err
	}

	// Cover first: the editor unlocks the text fields after an image.
	if err := p.uploadCover(ctx, page, draft.CoverPath); err != nil {
		return err
	}
	if err := p.fillTitle(ctx, page, draft.Title); err != nil {
		return err
	}
	if err := p.cfg.ActionPause.Sleep(ctx); err != nil {
		return err
	}
	if err := p.fillBody(ctx, page, draft.Body); err != nil {
		return err
	}
	if err := p.addTags(ctx, page, draft.Tags); err != nil {
		return err
	}

	p.log.Info("draft filled, submitting after review pause",
		"as_draft", draft.AsDraft, "review_pause", p.cfg.ReviewPause)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.ReviewPause):
	}

	return p.submit(ctx, page, draft.AsDraft)
}

func (p *Publisher) waitControl(ctx context.Context, page browser.Page, field string) (browser.Element, error) {
	return page.WaitForAny(ctx, p.res.Candidates("publish", field), p.cfg.ControlTimeout)
}

func (p *Publisher) uploadCover(ctx context.Context, page browser.Page, coverPath string) error {
	if coverPath == "" {
		return nil
	}
	if _, err := os.Stat(coverPath); err != nil {
		p.log.Warn("cover image missing, skipping", "path", coverPath)
		return nil
	}
	input, err := p.waitControl(ctx, page, "cover_upload")
	if err != nil {
		return err
	}
	if input == nil {
		p.log.Warn("cover upload control not found, skipping")
		return nil
	}
	if err := input.SetFiles(coverPath); err != nil {
		if browser.IsTargetClosed(err) {
			return err
		}
		p.log.Warn("cover upload failed", "err", err)
		return nil
	}
	return p.cfg.UploadWait.Sleep(ctx)
}

func (p *Publisher) fillTitle(ctx context.Context, page browser.Page, title string) error {
	el, err := p.waitControl(ctx, page, "title_input")
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("%w: title input", ErrEditorNotFound)
	}
	if err := el.Click(); err != nil && browser.IsTargetClosed(err) {
		return err
	}
	// Select-and-replace clears any stale value before typing.
	if err := el.Input(""); err != nil && browser.IsTargetClosed(err) {
		return err
	}
	return p.typeHuman(ctx, page, title)
}

func (p *Publisher) fillBody(ctx context.Context, page browser.Page, body string) error {
	el, err := p.waitControl(ctx, page, "content_input")
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("%w: content input", ErrEditorNotFound)
	}
	if err := el.Click(); err != nil && browser.IsTargetClosed(err) {
		return err
	}

	paragraphs := strings.Split(body, "\n")
	for i, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para != "" {
			if err := p.typeHuman(ctx, page, para); err != nil {
				return err
			}
		}
		if i < len(paragraphs)-1 {
			if err := page.PressEnter(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// addTags types " #tag" at the end of the body and picks the first topic
// suggestion; without a suggestion a trailing space confirms the literal
// tag. A failed tag never fails the publication.
func (p *Publisher) addTags(ctx context.Context, page browser.Page, tags []string) error {
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}

		if err := page.TypeText(ctx, " #"); err != nil {
			return err
		}
		if err := p.typeHuman(ctx, page, tag); err != nil {
			return err
		}
		if err := p.cfg.ActionPause.Sleep(ctx); err != nil {
			return err
		}

		suggestion, err := page.WaitForAny(ctx,
			p.res.Candidates("publish", "tag_suggestion"), 3*time.Second)
		if err != nil {
			return err
		}
		if suggestion != nil {
			if err := suggestion.Click(); err != nil {
				if browser.IsTargetClosed(err) {
					return err
				}
				p.log.Warn("tag suggestion click failed", "tag", tag, "err", err)
			}
		} else {
			if err := page.TypeText(ctx, " "); err != nil {
				return err
			}
		}
		if err := p.cfg.ActionPause.Sleep(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) submit(ctx context.Context, page browser.Page, asDraft bool) error {
	field := "publish_button"
	if asDraft {
		field = "draft_button"
	}
	btn, err := p.waitControl(ctx, page, field)
	if err != nil {
		return err
	}
	if btn == nil {
		return fmt.Errorf("%w: %s", ErrEditorNotFound, field)
	}
	if err := btn.Click(); err != nil {
		if browser.IsTargetClosed(err) {
			return err
		}
		if err := btn.ClickScript(); err != nil {
			return err
		}
	}
	if err := p.cfg.ActionPause.Sleep(ctx); err != nil {
		return err
	}

	confirm, err := page.WaitForAny(ctx,
		p.res.Candidates("publish", "confirm_dialog_ok"), 3*time.Second)
	if err != nil {
		return err
	}
	if confirm != nil {
		if err := confirm.Click(); err != nil && browser.IsTargetClosed(err) {
			return err
		}
	}
	p.log.Info("submitted", "as_draft", asDraft)
	return nil
}

func (p *Publisher) typeHuman(ctx context.Context, page browser.Page, text string) error {
	for _, r := range text {
		if err := page.TypeText(ctx, string(r)); err != nil {
			return err
		}
		if err := p.cfg.CharDelay.Sleep(ctx); err != nil {
			return err
		}
	}
	return nil
}
