package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/browser/browsertest"
	"github.com/hazyhaar/carnet/selector"
)

const itemSel = "section.note-item"

// fastPause keeps tests from sleeping for real.
var fastPause = browser.Delay{Min: time.Nanosecond, Max: 2 * time.Nanosecond}

func testResolver() *selector.Resolver {
	return selector.NewResolver(selector.Default(), nil)
}

func makeItem(title, href, like string) *browsertest.Element {
	return &browsertest.Element{
		IsVisible: true,
		Children: map[string][]*browsertest.Element{
			"a.title span":        {{TextValue: title}},
			"a":                   {{Attrs: map[string]string{"href": href}}},
			".like-wrapper .count": {{TextValue: like}},
		},
	}
}

func newListScraper() *ListScraper {
	return NewListScraper(ListConfig{ScrollPause: fastPause}, testResolver())
}

// captureSink records events for assertions.
type captureSink struct{ events []Event }

func (s *captureSink) Emit(ev Event) { s.events = append(s.events, ev) }

func (s *captureSink) find(kind string) []Event {
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// WHAT: items already seen are not re-added across scroll passes, and
// missing title/like fall back to their defaults.
func TestListCollectDedup(t *testing.T) {
	page := &browsertest.Page{}
	page.SetMatches(itemSel,
		makeItem("第一篇", "/explore/n1", "1.2万"),
		&browsertest.Element{IsVisible: true}, // no title, no link, no count
	)
	page.OnScroll = func(p *browsertest.Page) {
		p.SetMatches(itemSel,
			makeItem("第一篇", "/explore/n1", "1.2万"),
			&browsertest.Element{IsVisible: true},
			makeItem("第三篇", "/explore/n3", "88"),
		)
	}

	recs, err := newListScraper().Collect(context.Background(), page, 3)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Title != "第一篇" || recs[0].ID != "n1" {
		t.Fatalf("first record wrong: %+v", recs[0])
	}
	if recs[1].Title != defaultTitle || recs[1].LikeCount != defaultCount {
		t.Fatalf("defaults not applied: %+v", recs[1])
	}
	if !strings.HasPrefix(recs[2].URL, "https://") {
		t.Fatalf("relative href not absolutized: %q", recs[2].URL)
	}
	if recs[0].Detail.Status != StatusUnfetched {
		t.Fatalf("fresh record status = %v, want unfetched", recs[0].Detail.Status)
	}
}

// WHAT: a feed that stops yielding new items ends the loop with whatever
// was collected, well under the scroll budget.
// WHY: asking for 5 notes from a 3-note feed must not spin for 20 scrolls.
func TestListCollectFeedExhausted(t *testing.T) {
	page := &browsertest.Page{}
	page.SetMatches(itemSel,
		makeItem("a", "/explore/a1", "1"),
		makeItem("b", "/explore/b2", "2"),
		makeItem("c", "/explore/c3", "3"),
	)

	recs, err := newListScraper().Collect(context.Background(), page, 5)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if page.Scrolls != staleScrollLimit {
		t.Fatalf("scrolls = %d, want %d (stale stop)", page.Scrolls, staleScrollLimit)
	}
}

// WHAT: the browser dying mid-collection returns the partials plus a
// target-closed error.
func TestListCollectPartialOnTransportLoss(t *testing.T) {
	page := &browsertest.Page{}
	page.SetMatches(itemSel, makeItem("a", "/explore/a1", "1"))
	page.OnScroll = func(p *browsertest.Page) {
		p.Err = errors.New("rod: target closed")
	}

	recs, err := newListScraper().Collect(context.Background(), page, 10)
	if !browser.IsTargetClosed(err) {
		t.Fatalf("err = %v, want target-closed", err)
	}
	if len(recs) != 1 {
		t.Fatalf("partials = %d, want 1", len(recs))
	}
}

// detailPage builds a page whose item click opens a fully populated popup.
func detailPage() (*browsertest.Page, *browsertest.Element) {
	page := &browsertest.Page{URLValue: "https://www.example.com/search_result?keyword=k"}

	openPopup := func() {
		page.SetMatches(".note-detail-mask", &browsertest.Element{IsVisible: true})
		page.SetMatches("#detail-title", &browsertest.Element{TextValue: "弹窗里的完整标题"})
		page.SetMatches("#detail-desc .note-text", &browsertest.Element{
			TextValue: "这是正文内容", HTMLValue: "<div>这是正文内容</div>",
		})
		page.SetMatches(".engage-bar .like-wrapper .count", &browsertest.Element{TextValue: "1.2万"})
		page.SetMatches(".engage-bar .collect-wrapper .count", &browsertest.Element{TextValue: "500"})
		page.SetMatches(".engage-bar .chat-wrapper .count", &browsertest.Element{TextValue: "32"})
		page.SetMatches("#detail-desc a.tag",
			&browsertest.Element{TextValue: "#旅行"},
			&browsertest.Element{TextValue: "旅行"},
			&browsertest.Element{TextValue: "美食"},
		)
		page.SetMatches(".bottom-container .date", &browsertest.Element{TextValue: "2026-08-20"})
		page.SetMatches(".author-wrapper .username", &browsertest.Element{TextValue: "作者"})
		page.SetMatches("div.close-box", &browsertest.Element{OnClick: func() {
			page.SetMatches(".note-detail-mask")
		}})
	}

	item := &browsertest.Element{
		IsVisible: true,
		Children: map[string][]*browsertest.Element{
			"a.cover": {{OnClick: openPopup}},
		},
	}
	return page, item
}

func newDetailScraper(sink EventSink) *DetailScraper {
	return NewDetailScraper(DetailConfig{RenderPause: fastPause, Sink: sink}, testResolver())
}

// WHAT: the happy path fills every field, dedups tags, and closes the
// popup through the close control without needing Escape.
func TestScrapeDetailHappyPath(t *testing.T) {
	page, item := detailPage()
	sum := &SummaryRecord{ID: "n1", Title: "第一篇"}

	det, err := newDetailScraper(nil).ScrapeDetail(context.Background(), page, sum, item)
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if det.Status != StatusOK {
		t.Fatalf("status = %v, want ok (err=%s)", det.Status, det.Err)
	}
	if det.Title != "弹窗里的完整标题" {
		t.Fatalf("title = %q", det.Title)
	}
	if det.Body != "这是正文内容" {
		t.Fatalf("body = %q", det.Body)
	}
	if det.LikeCount != "1.2万" || det.CollectCount != "500" || det.CommentCount != "32" {
		t.Fatalf("counts wrong: %+v", det)
	}
	if len(det.Tags) != 2 || det.Tags[0] != "#旅行" || det.Tags[1] != "#美食" {
		t.Fatalf("tags = %v, want deduped #-prefixed pair", det.Tags)
	}
	if det.Author != "作者" || det.PublishTime != "2026-08-20" {
		t.Fatalf("author/time wrong: %+v", det)
	}
	if el, _ := page.Query(".note-detail-mask"); el != nil {
		t.Fatal("popup left open")
	}
	if page.Escapes != 0 {
		t.Fatal("escape pressed although close control worked")
	}
}

// WHAT: an unclickable item yields unfetched without touching the page.
func TestScrapeDetailUnclickable(t *testing.T) {
	page := &browsertest.Page{}
	item := &browsertest.Element{
		ClickErr:  errors.New("element covered"),
		ScriptErr: errors.New("not a function"),
	}
	det, err := newDetailScraper(nil).ScrapeDetail(context.Background(), page, &SummaryRecord{ID: "x"}, item)
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if det.Status != StatusUnfetched || det.Err == "" {
		t.Fatalf("got %+v, want unfetched with reason", det)
	}
}

// WHAT: a popup that never appears is unfetched, not fatal.
func TestScrapeDetailOverlayTimeout(t *testing.T) {
	page := &browsertest.Page{}
	item := &browsertest.Element{
		Children: map[string][]*browsertest.Element{"a.cover": {{}}},
	}
	sink := &captureSink{}

	det, err := newDetailScraper(sink).ScrapeDetail(context.Background(), page, &SummaryRecord{ID: "x"}, item)
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if det.Status != StatusUnfetched {
		t.Fatalf("status = %v, want unfetched", det.Status)
	}
	if len(sink.find("detail_overlay_timeout")) != 1 {
		t.Fatal("timeout event not emitted")
	}
}

// WHAT: restricted and deleted notes are classified by page phrase and the
// popup is still closed.
func TestScrapeDetailBlockedNote(t *testing.T) {
	cases := []struct {
		phrase string
		want   Status
	}{
		{"当前笔记暂时无法浏览", StatusRestricted},
		{"笔记不存在", StatusNotFound},
		{"内容已被删除", StatusNotFound},
	}
	for _, tc := range cases {
		page := &browsertest.Page{BodyTextValue: "系统提示 " + tc.phrase}
		item := &browsertest.Element{
			Children: map[string][]*browsertest.Element{
				"a.cover": {{OnClick: func() {
					page.SetMatches(".note-detail-mask", &browsertest.Element{IsVisible: true})
				}}},
			},
		}
		det, err := newDetailScraper(nil).ScrapeDetail(context.Background(), page, &SummaryRecord{ID: "x"}, item)
		if err != nil {
			t.Fatalf("%s: ScrapeDetail: %v", tc.phrase, err)
		}
		if det.Status != tc.want {
			t.Fatalf("%s: status = %v, want %v", tc.phrase, det.Status, tc.want)
		}
		if page.Escapes == 0 {
			t.Fatalf("%s: popup not escaped", tc.phrase)
		}
	}
}

// WHAT: a content element that exists but cannot be read, with no fallback
// body, degrades to StatusError with the reason retained; other fields and
// the popup close still go through.
func TestScrapeDetailExtractionError(t *testing.T) {
	page := &browsertest.Page{}
	item := &browsertest.Element{
		Children: map[string][]*browsertest.Element{
			"a.cover": {{OnClick: func() {
				page.SetMatches(".note-detail-mask", &browsertest.Element{IsVisible: true})
				page.SetMatches("#detail-desc .note-text", &browsertest.Element{
					TextErr: errors.New("node detached"),
				})
				page.SetMatches(".engage-bar .like-wrapper .count", &browsertest.Element{TextValue: "7"})
			}}},
		},
	}
	sink := &captureSink{}

	det, err := newDetailScraper(sink).ScrapeDetail(context.Background(), page, &SummaryRecord{ID: "x"}, item)
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if det.Status != StatusError {
		t.Fatalf("status = %v, want error", det.Status)
	}
	if !strings.Contains(det.Err, "node detached") {
		t.Fatalf("reason not retained: %q", det.Err)
	}
	if det.LikeCount != "7" {
		t.Fatalf("other fields dropped: %+v", det)
	}
	if page.Escapes == 0 {
		t.Fatal("popup not closed")
	}
	if len(sink.find("detail_error")) != 1 {
		t.Fatal("error event not emitted")
	}
}

// WHAT: when every content selector misses, the body comes from density
// extraction over the page HTML.
func TestScrapeDetailBodyFallback(t *testing.T) {
	long := strings.Repeat("这是需要密度提取的正文段落。", 8)
	page := &browsertest.Page{
		HTMLValue: `<html><body><div class="note-detail-mask"><div id="noteContainer"><p>` + long + `</p></div></div></body></html>`,
	}
	item := &browsertest.Element{
		Children: map[string][]*browsertest.Element{
			"a.cover": {{OnClick: func() {
				page.SetMatches(".note-detail-mask", &browsertest.Element{IsVisible: true})
			}}},
		},
	}
	det, err := newDetailScraper(nil).ScrapeDetail(context.Background(), page, &SummaryRecord{ID: "x"}, item)
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if det.Status != StatusOK {
		t.Fatalf("status = %v, want ok", det.Status)
	}
	if !strings.Contains(det.Body, "密度提取") {
		t.Fatalf("fallback body = %q", det.Body)
	}
}

func newPipeline(sink EventSink) *Pipeline {
	return NewPipeline(
		PipelineConfig{ItemPause: fastPause, Sink: sink},
		testResolver(),
		NewDetailScraper(DetailConfig{RenderPause: fastPause}, testResolver()),
	)
}

// WHAT: each summary is re-acquired by URL before its fetch, and the batch
// tally matches the statuses.
func TestPipelineRun(t *testing.T) {
	page, clickable := detailPage()
	clickable.Children["a"] = []*browsertest.Element{{Attrs: map[string]string{"href": "/explore/n2"}}}
	decoy := makeItem("别的", "/explore/other", "1")
	page.SetMatches(itemSel, decoy, clickable)

	sink := &captureSink{}
	sums := []*SummaryRecord{{ID: "n2", Title: "目标", URL: "https://www.xiaohongshu.com/explore/n2"}}

	batch, err := newPipeline(sink).Run(context.Background(), page, sums)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if batch.Attempted != 1 || batch.Succeeded != 1 {
		t.Fatalf("tally = %+v", batch)
	}
	if sums[0].Detail.Status != StatusOK || sums[0].Detail.Body == "" {
		t.Fatalf("detail not merged: %+v", sums[0].Detail)
	}
	done := sink.find("item_done")
	if len(done) != 1 || done[0].Fields["strategy"] != "byURL" {
		t.Fatalf("strategy = %v, want byURL", done)
	}
}

// WHAT: a list pass that only yielded the placeholder title gets the real
// title from the popup after the detail fetch.
func TestPipelineDetailTitleWins(t *testing.T) {
	page, clickable := detailPage()
	clickable.Children["a"] = []*browsertest.Element{{Attrs: map[string]string{"href": "/explore/n2"}}}
	page.SetMatches(itemSel, clickable)

	sums := []*SummaryRecord{{ID: "n2", Title: defaultTitle, URL: "https://www.xiaohongshu.com/explore/n2"}}

	if _, err := newPipeline(nil).Run(context.Background(), page, sums); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sums[0].Title != "弹窗里的完整标题" {
		t.Fatalf("title = %q, want popup title", sums[0].Title)
	}
	if sums[0].Detail.Title != "弹窗里的完整标题" {
		t.Fatalf("detail title = %q", sums[0].Detail.Title)
	}
}

// WHAT: a summary matching no live item is skipped, never fatal.
func TestPipelineSkipsUnresolvable(t *testing.T) {
	page := &browsertest.Page{}
	sums := []*SummaryRecord{{ID: "gone", Title: "无影", URL: "https://x.test/explore/gone"}}

	batch, err := newPipeline(nil).Run(context.Background(), page, sums)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if batch.Skipped != 1 || batch.Succeeded != 0 {
		t.Fatalf("tally = %+v", batch)
	}
	if sums[0].Detail.Status != StatusUnfetched {
		t.Fatalf("status = %v, want unfetched", sums[0].Detail.Status)
	}
}

// WHAT: the browser closing mid-batch returns the partial batch with the
// work done so far intact.
func TestPipelinePartialBatchOnTransportLoss(t *testing.T) {
	page, good := detailPage()
	good.Children["a"] = []*browsertest.Element{{Attrs: map[string]string{"href": "/explore/ok1"}}}
	dying := &browsertest.Element{
		Children: map[string][]*browsertest.Element{
			"a": {{Attrs: map[string]string{"href": "/explore/dead2"}}},
			"a.cover": {{
				ClickErr:  errors.New("rod: target closed"),
				ScriptErr: errors.New("rod: target closed"),
			}},
		},
	}
	page.SetMatches(itemSel, good, dying)

	sums := []*SummaryRecord{
		{ID: "ok1", URL: "https://x.test/explore/ok1"},
		{ID: "dead2", URL: "https://x.test/explore/dead2"},
		{ID: "never", URL: "https://x.test/explore/never"},
	}
	batch, err := newPipeline(nil).Run(context.Background(), page, sums)
	if !browser.IsTargetClosed(err) {
		t.Fatalf("err = %v, want target-closed", err)
	}
	if batch.Attempted != 2 {
		t.Fatalf("attempted = %d, want 2", batch.Attempted)
	}
	if sums[0].Detail.Status != StatusOK {
		t.Fatalf("first item lost: %+v", sums[0].Detail)
	}
	if sums[2].Detail.Status != StatusUnfetched {
		t.Fatalf("untouched item status = %v, want unfetched", sums[2].Detail.Status)
	}
}
