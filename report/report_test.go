package report

import (
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/trending"
)

func analysisBatch() *scrape.BatchResult {
	mk := func(id, title, like, collect, comment, body string, tags ...string) *scrape.SummaryRecord {
		return &scrape.SummaryRecord{
			ID: id, Title: title, LikeCount: like,
			CapturedAt: time.Now(),
			Detail: scrape.DetailRecord{
				Body: body, LikeCount: like, CollectCount: collect,
				CommentCount: comment, Tags: tags, Status: scrape.StatusOK,
			},
		}
	}
	return &scrape.BatchResult{
		Keyword: "咖啡",
		Records: []*scrape.SummaryRecord{
			mk("n1", "咖啡馆探店指南 3 家必去", "1.2万", "3000", "150",
				strings.Repeat("咖啡馆的拿铁很香，环境安静适合办公。", 20), "#咖啡", "#探店"),
			mk("n2", "自制咖啡教程", "800", "200", "30",
				"手冲咖啡的水温很关键。", "#咖啡"),
			mk("n3", "咖啡豆怎么选？", "500", "100", "10", "", "#咖啡豆"),
		},
	}
}

// WHAT: the analysis report carries every section and ranks by likes.
func TestAnalysisSections(t *testing.T) {
	got := Analysis(analysisBatch())

	for _, want := range []string{
		"# 小红书热门笔记分析报告",
		"**搜索关键词**: 咖啡",
		"## 📊 互动数据 Top 10",
		"## 🔑 高频关键词 Top 20",
		"## 📝 标题模式分析",
		"## 🏷️ 标签使用策略",
		"## 📏 内容长度与互动率关系",
		"## 💡 创作建议",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q", want)
		}
	}

	// 1.2万 likes must rank first.
	first := strings.Index(got, "咖啡馆探店指南")
	second := strings.Index(got, "自制咖啡教程")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("engagement ranking wrong: first=%d second=%d", first, second)
	}
	if !strings.Contains(got, "| 1 | 咖啡馆探店指南 3 家必去 | 12000 | 3000 | 150 |") {
		t.Errorf("top row not rendered with parsed counts:\n%s", got)
	}
}

// WHAT: keyword frequency skips stopwords; tag table counts repeats.
func TestAnalysisFrequencies(t *testing.T) {
	batch := analysisBatch()
	batch.Records[1].Detail.Body = "但是 但是 但是 咖啡豆 咖啡豆"
	got := Analysis(batch)

	if strings.Contains(got, "| 但是 |") {
		t.Error("stopword leaked into keyword table")
	}
	if !strings.Contains(got, "| #咖啡 | 2 |") {
		t.Errorf("tag count missing:\n%s", got)
	}
}

// WHAT: notes without body fall into the no-content branch.
func TestAnalysisNoBodies(t *testing.T) {
	batch := analysisBatch()
	for _, rec := range batch.Records {
		rec.Detail.Body = ""
	}
	got := Analysis(batch)
	if !strings.Contains(got, "未抓取到正文内容") {
		t.Error("empty-body notice missing")
	}
	if strings.Contains(got, "## 📖 高赞正文摘录") {
		t.Error("highlights section rendered without any bodies")
	}
}

// WHAT: the highlights section renders captured HTML as markdown and falls
// back to the plain body when no HTML was captured.
func TestAnalysisBodyHighlights(t *testing.T) {
	batch := analysisBatch()
	batch.Records[0].Detail.BodyHTML = `<p>今天去了<strong>咖啡馆</strong>，拿铁很香。</p>`
	got := Analysis(batch)

	if !strings.Contains(got, "## 📖 高赞正文摘录") {
		t.Fatalf("highlights section missing:\n%s", got)
	}
	if !strings.Contains(got, "**咖啡馆**") {
		t.Errorf("captured HTML not rendered as markdown:\n%s", got)
	}
	if !strings.Contains(got, "手冲咖啡的水温很关键。") {
		t.Errorf("plain-body fallback missing:\n%s", got)
	}
}

// WHAT: the trending report labels sources and advises on the top 3.
func TestTrendingReport(t *testing.T) {
	topics := []trending.Topic{
		{Name: "露营", Heat: 12000000, Source: trending.SourceSearchTrending},
		{Name: "早餐", Frequency: 4, Source: trending.SourceFeedAnalysis},
	}
	got := Trending(topics)

	if !strings.Contains(got, "| 1 | 露营 | 12000000 | 搜索热搜 |") {
		t.Errorf("search topic row missing:\n%s", got)
	}
	if !strings.Contains(got, "| 2 | 早餐 | 出现 4 次 | 信息流分析 |") {
		t.Errorf("feed topic row missing:\n%s", got)
	}
	if !strings.Contains(got, "围绕「露营」") {
		t.Error("advice section missing top topic")
	}
}

// WHAT: HTML bodies convert to markdown; script tags are stripped first.
func TestBodyMarkdown(t *testing.T) {
	c := NewConverter()

	got := c.BodyMarkdown(`<p>今天去了<strong>咖啡馆</strong></p><script>alert(1)</script>`, "fallback")
	if !strings.Contains(got, "**咖啡馆**") {
		t.Errorf("markdown emphasis missing: %q", got)
	}
	if strings.Contains(got, "alert") {
		t.Errorf("script survived sanitization: %q", got)
	}

	if got := c.BodyMarkdown("  ", "原始正文"); got != "原始正文" {
		t.Errorf("empty HTML should return fallback, got %q", got)
	}
}
