// Package report renders markdown analysis of scraped batches and
// trending collections.
package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/trending"
)

var (
	cjkWordRe = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,4}`)
	digitRe   = regexp.MustCompile(`\d+`)
	symbolRe  = regexp.MustCompile(`[^\w\s\x{4e00}-\x{9fff}]`)
)

// stopwords filters filler words out of keyword frequency counts.
var stopwords = map[string]struct{}{
	"什么": {}, "怎么": {}, "这个": {}, "那个": {}, "一个": {}, "可以": {},
	"就是": {}, "真的": {}, "大家": {}, "自己": {}, "不是": {}, "没有": {},
	"已经": {}, "还是": {}, "我们": {}, "他们": {}, "知道": {}, "觉得": {},
	"因为": {}, "所以": {}, "但是": {}, "而且": {}, "或者": {}, "如果": {},
}

type wordCount struct {
	word  string
	count int
}

func topCounts(freq map[string]int, n int) []wordCount {
	out := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		out = append(out, wordCount{w, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].word < out[j].word
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}

func engagement(rec *scrape.SummaryRecord) int64 {
	like := scrape.ParseCount(rec.Detail.LikeCount)
	if like == 0 {
		like = scrape.ParseCount(rec.LikeCount)
	}
	return like + scrape.ParseCount(rec.Detail.CollectCount) + scrape.ParseCount(rec.Detail.CommentCount)
}

func likeOf(rec *scrape.SummaryRecord) int64 {
	if n := scrape.ParseCount(rec.Detail.LikeCount); n > 0 {
		return n
	}
	return scrape.ParseCount(rec.LikeCount)
}

// Analysis renders a batch as a markdown report: engagement ranking,
// keyword frequency, title patterns, tag usage, and length breakdowns.
func Analysis(batch *scrape.BatchResult) string {
	var b strings.Builder
	records := batch.Records

	fmt.Fprintf(&b, "# 小红书热门笔记分析报告\n\n")
	fmt.Fprintf(&b, "- **搜索关键词**: %s\n", batch.Keyword)
	fmt.Fprintf(&b, "- **分析笔记数**: %d 篇\n", len(records))
	fmt.Fprintf(&b, "- **生成时间**: %s\n\n---\n\n", time.Now().Format("2006-01-02 15:04:05"))

	writeEngagementTop(&b, records)
	freq := writeKeywordFreq(&b, records)
	titleStats := writeTitlePatterns(&b, records)
	tagFreq := writeTagStrategy(&b, records)
	writeLengthBuckets(&b, records)
	writeBodyHighlights(&b, records)
	writeSuggestions(&b, freq, tagFreq, titleStats)

	return b.String()
}

func writeEngagementTop(b *strings.Builder, records []*scrape.SummaryRecord) {
	b.WriteString("## 📊 互动数据 Top 10\n\n")
	ranked := make([]*scrape.SummaryRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool { return likeOf(ranked[i]) > likeOf(ranked[j]) })
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	b.WriteString("| 排名 | 标题 | 👍 点赞 | ⭐ 收藏 | 💬 评论 |\n")
	b.WriteString("|------|------|---------|---------|---------|\n")
	for i, rec := range ranked {
		fmt.Fprintf(b, "| %d | %s | %d | %d | %d |\n",
			i+1, truncate(rec.Title, 30), likeOf(rec),
			scrape.ParseCount(rec.Detail.CollectCount),
			scrape.ParseCount(rec.Detail.CommentCount))
	}
	b.WriteString("\n")
}

func writeKeywordFreq(b *strings.Builder, records []*scrape.SummaryRecord) []wordCount {
	b.WriteString("## 🔑 高频关键词 Top 20\n\n")

	freq := map[string]int{}
	for _, rec := range records {
		for _, w := range cjkWordRe.FindAllString(rec.Title+" "+rec.Detail.Body, -1) {
			if _, stop := stopwords[w]; !stop {
				freq[w]++
			}
		}
	}
	top := topCounts(freq, 20)

	b.WriteString("| 排名 | 关键词 | 出现次数 |\n")
	b.WriteString("|------|--------|----------|\n")
	for i, wc := range top {
		fmt.Fprintf(b, "| %d | %s | %d |\n", i+1, wc.word, wc.count)
	}
	b.WriteString("\n")
	return top
}

type titlePatterns struct {
	total    int
	avgLen   float64
	question int
	number   int
	symbol   int
}

func writeTitlePatterns(b *strings.Builder, records []*scrape.SummaryRecord) titlePatterns {
	b.WriteString("## 📝 标题模式分析\n\n")

	var st titlePatterns
	var lenSum int
	for _, rec := range records {
		t := rec.Title
		if t == "" {
			continue
		}
		st.total++
		lenSum += utf8.RuneCountInString(t)
		if strings.ContainsAny(t, "?？") || strings.Contains(t, "吗") {
			st.question++
		}
		if digitRe.MatchString(t) {
			st.number++
		}
		if symbolRe.MatchString(t) {
			st.symbol++
		}
	}
	if st.total > 0 {
		st.avgLen = float64(lenSum) / float64(st.total)
	}

	fmt.Fprintf(b, "- **平均标题长度**: %.0f 字\n", st.avgLen)
	pct := func(n int) float64 {
		if st.total == 0 {
			return 0
		}
		return float64(n) / float64(st.total) * 100
	}
	fmt.Fprintf(b, "- **疑问句标题**: %d 篇 (%.0f%%)\n", st.question, pct(st.question))
	fmt.Fprintf(b, "- **含数字标题**: %d 篇 (%.0f%%)\n", st.number, pct(st.number))
	fmt.Fprintf(b, "- **含符号标题**: %d 篇 (%.0f%%)\n\n", st.symbol, pct(st.symbol))
	return st
}

func writeTagStrategy(b *strings.Builder, records []*scrape.SummaryRecord) []wordCount {
	b.WriteString("## 🏷️ 标签使用策略\n\n")

	freq := map[string]int{}
	tagged := 0
	for _, rec := range records {
		tagged += len(rec.Detail.Tags)
		for _, tag := range rec.Detail.Tags {
			freq[tag]++
		}
	}
	top := topCounts(freq, 15)
	if len(top) == 0 {
		b.WriteString("- 未抓取到标签数据\n\n")
		return nil
	}

	avg := float64(tagged) / float64(len(records))
	fmt.Fprintf(b, "- **平均每篇标签数**: %.1f\n", avg)
	b.WriteString("- **最热门标签**:\n\n| 标签 | 使用次数 |\n|------|----------|\n")
	for _, wc := range top {
		fmt.Fprintf(b, "| %s | %d |\n", wc.word, wc.count)
	}
	b.WriteString("\n")
	return top
}

func writeLengthBuckets(b *strings.Builder, records []*scrape.SummaryRecord) {
	b.WriteString("## 📏 内容长度与互动率关系\n\n")

	var short, medium, long []*scrape.SummaryRecord
	for _, rec := range records {
		n := utf8.RuneCountInString(rec.Detail.Body)
		switch {
		case n == 0:
		case n < 200:
			short = append(short, rec)
		case n < 500:
			medium = append(medium, rec)
		default:
			long = append(long, rec)
		}
	}
	if len(short)+len(medium)+len(long) == 0 {
		b.WriteString("- 未抓取到正文内容，无法分析\n\n")
		return
	}

	avgEng := func(group []*scrape.SummaryRecord) float64 {
		if len(group) == 0 {
			return 0
		}
		var sum int64
		for _, rec := range group {
			sum += engagement(rec)
		}
		return float64(sum) / float64(len(group))
	}
	b.WriteString("| 内容长度 | 笔记数 | 平均互动量 |\n|----------|--------|------------|\n")
	fmt.Fprintf(b, "| 短 (<200字) | %d | %.0f |\n", len(short), avgEng(short))
	fmt.Fprintf(b, "| 中 (200-500字) | %d | %.0f |\n", len(medium), avgEng(medium))
	fmt.Fprintf(b, "| 长 (>500字) | %d | %.0f |\n\n", len(long), avgEng(long))
}

// writeBodyHighlights quotes the top notes' bodies as markdown, rendered
// from the captured HTML when available. Skipped when nothing has a body.
func writeBodyHighlights(b *strings.Builder, records []*scrape.SummaryRecord) {
	ranked := make([]*scrape.SummaryRecord, 0, len(records))
	for _, rec := range records {
		if rec.Detail.Body != "" || rec.Detail.BodyHTML != "" {
			ranked = append(ranked, rec)
		}
	}
	if len(ranked) == 0 {
		return
	}
	sort.SliceStable(ranked, func(i, j int) bool { return engagement(ranked[i]) > engagement(ranked[j]) })
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	b.WriteString("## 📖 高赞正文摘录\n\n")
	conv := NewConverter()
	for _, rec := range ranked {
		fmt.Fprintf(b, "### %s\n\n", truncate(rec.Title, 30))
		body := conv.BodyMarkdown(rec.Detail.BodyHTML, rec.Detail.Body)
		b.WriteString(truncate(body, 300))
		b.WriteString("\n\n")
	}
}

func writeSuggestions(b *strings.Builder, freq, tagFreq []wordCount, st titlePatterns) {
	b.WriteString("## 💡 创作建议\n\n")

	if len(freq) > 0 {
		words := make([]string, 0, 5)
		for _, wc := range freq {
			words = append(words, wc.word)
			if len(words) == 5 {
				break
			}
		}
		fmt.Fprintf(b, "1. **关键词热点**: 围绕「%s」等高频词创作\n", strings.Join(words, "、"))
	}
	lo := int(st.avgLen) - 5
	if lo < 10 {
		lo = 10
	}
	fmt.Fprintf(b, "2. **标题长度**: 建议控制在 %d-%d 字\n", lo, int(st.avgLen)+5)
	if st.total > 0 && float64(st.number) > float64(st.total)*0.3 {
		b.WriteString("3. **数字标题**: 该领域含数字的标题效果好，建议使用具体数据\n")
	}
	if st.total > 0 && float64(st.symbol) > float64(st.total)*0.3 {
		b.WriteString("4. **符号使用**: 该领域符号/Emoji 使用率高，建议适当添加\n")
	}
	if len(tagFreq) > 0 {
		tags := make([]string, 0, 5)
		for _, wc := range tagFreq {
			tags = append(tags, wc.word)
			if len(tags) == 5 {
				break
			}
		}
		fmt.Fprintf(b, "5. **推荐标签**: %s\n", strings.Join(tags, "、"))
	}
	b.WriteString("\n")
}

var sourceLabels = map[trending.Source]string{
	trending.SourceSearchTrending: "搜索热搜",
	trending.SourceExplorePage:    "探索推荐",
	trending.SourceFeedAnalysis:   "信息流分析",
}

// Trending renders a trending collection as a markdown report.
func Trending(topics []trending.Topic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# 小红书热门话题报告\n\n")
	fmt.Fprintf(&b, "- **话题数量**: %d\n", len(topics))
	fmt.Fprintf(&b, "- **生成时间**: %s\n\n---\n\n", time.Now().Format("2006-01-02 15:04:05"))

	b.WriteString("## 🔥 热门话题榜\n\n")
	b.WriteString("| 排名 | 话题 | 热度/频次 | 来源 |\n")
	b.WriteString("|------|------|-----------|------|\n")
	for i, t := range topics {
		label := sourceLabels[t.Source]
		if label == "" {
			label = string(t.Source)
		}
		heat := "-"
		if t.Heat > 0 {
			heat = fmt.Sprintf("%d", t.Heat)
		} else if t.Frequency > 0 {
			heat = fmt.Sprintf("出现 %d 次", t.Frequency)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, t.Name, heat, label)
	}
	b.WriteString("\n## 💡 选题建议\n\n")
	for i, t := range topics {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d. 围绕「%s」创作相关内容，蹭当前热度\n", i+1, t.Name)
	}
	b.WriteString("\n")
	return b.String()
}

// Converter turns captured note HTML into sanitized markdown.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

func NewConverter() *Converter {
	policy := bluemonday.UGCPolicy()
	return &Converter{
		policy: policy,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// BodyMarkdown sanitizes raw note HTML and converts it to markdown.
// Returns fallback when the HTML is empty or conversion yields nothing.
func (c *Converter) BodyMarkdown(rawHTML, fallback string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return fallback
	}
	clean := c.policy.Sanitize(rawHTML)
	result, err := c.md.ConvertString(clean)
	if err != nil || strings.TrimSpace(result) == "" {
		return fallback
	}
	return strings.TrimSpace(result)
}
