// Package trending collects hot topics. The platform has no stable public
// ranking endpoint, so three strategies run in priority order until the
// requested count is reached: the search-box hot list, explore-page topic
// cards, and frequency analysis of hashtags in the home feed.
package trending

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/selector"
)

// Source tags where a topic was observed.
type Source string

const (
	SourceSearchTrending Source = "search_trending"
	SourceExplorePage    Source = "explore_page"
	SourceFeedAnalysis   Source = "feed_analysis"
)

// Topic is one trending entry.
type Topic struct {
	Name      string `json:"name"`
	Rank      string `json:"rank,omitempty"`
	Heat      int64  `json:"heat"`
	Frequency int    `json:"frequency,omitempty"`
	URL       string `json:"url,omitempty"`
	Source    Source `json:"source"`
}

// Config tunes collection.
type Config struct {
	HomeURL    string `yaml:"home_url"`
	ExploreURL string `yaml:"explore_url"`
	// FeedScrollRounds bounds the fallback feed analysis.
	FeedScrollRounds int           `yaml:"feed_scroll_rounds"`
	ScrollAmount     int           `yaml:"scroll_amount"`
	SettlePause      browser.Delay `yaml:"settle_pause"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.HomeURL == "" {
		c.HomeURL = "https://www.xiaohongshu.com"
	}
	if c.ExploreURL == "" {
		c.ExploreURL = "https://www.xiaohongshu.com/explore"
	}
	if c.FeedScrollRounds <= 0 {
		c.FeedScrollRounds = 8
	}
	if c.ScrollAmount <= 0 {
		c.ScrollAmount = 600
	}
	if c.SettlePause == (browser.Delay{}) {
		c.SettlePause = browser.Delay{Min: time.Second, Max: 2 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// hashtagSelectors find tag links in the home feed.
var hashtagSelectors = []string{
	"a[href*='/page/topics/']",
	".hashtag",
	".tag-item",
	"a[href*='keyword=']",
}

// feedTextSelectors find note texts that may embed #话题 tags.
var feedTextSelectors = []string{
	".note-item .title",
	".note-item span",
	".note-item .desc",
}

var inlineTagRe = regexp.MustCompile(`#([\p{Han}A-Za-z0-9]{2,15})`)

// Collector gathers topics from a logged-in page.
type Collector struct {
	cfg Config
	res *selector.Resolver
	log *slog.Logger
}

func NewCollector(cfg Config, res *selector.Resolver) *Collector {
	cfg.applyDefaults()
	return &Collector{cfg: cfg, res: res, log: cfg.Logger}
}

// Collect runs the strategies in order until count topics are found, then
// dedups by name keeping the first (highest-priority) sighting. Transport
// loss returns what was gathered so far with the error.
func (c *Collector) Collect(ctx context.Context, page browser.Page, count int) ([]Topic, error) {
	if count <= 0 {
		count = 20
	}
	var all []Topic

	strategies := []struct {
		name Source
		run  func(context.Context, browser.Page, int) ([]Topic, error)
	}{
		{SourceSearchTrending, c.fromSearch},
		{SourceExplorePage, c.fromExplore},
		{SourceFeedAnalysis, c.fromFeed},
	}
	for _, st := range strategies {
		if len(all) >= count {
			break
		}
		topics, err := st.run(ctx, page, count-len(all))
		all = append(all, topics...)
		if err != nil {
			return dedup(all, count), err
		}
		c.log.Debug("trending strategy done", "source", string(st.name), "found", len(topics))
	}
	return dedup(all, count), nil
}

func dedup(topics []Topic, count int) []Topic {
	seen := map[string]bool{}
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		if t.Name == "" || seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
		if len(out) == count {
			break
		}
	}
	return out
}

// fromSearch clicks the search box on the home page, which unfolds the
// hot-search list, and reads it.
func (c *Collector) fromSearch(ctx context.Context, page browser.Page, count int) ([]Topic, error) {
	if err := page.Goto(ctx, c.cfg.HomeURL); err != nil {
		return nil, err
	}
	if err := c.cfg.SettlePause.Sleep(ctx); err != nil {
		return nil, err
	}

	input, err := c.res.Resolve(page, "search", "search_input")
	if err != nil {
		return nil, err
	}
	if input == nil {
		return nil, nil
	}
	if err := input.Click(); err != nil {
		if browser.IsTargetClosed(err) {
			return nil, err
		}
		return nil, nil
	}
	if err := c.cfg.SettlePause.Sleep(ctx); err != nil {
		return nil, err
	}

	items, err := c.res.ResolveAll(page, "trending", "hot_search_item")
	if err != nil {
		return nil, err
	}

	var topics []Topic
	for _, item := range items {
		if len(topics) >= count {
			break
		}
		name, err := c.res.Text(item, "trending", "hot_search_name", "")
		if err != nil {
			return topics, err
		}
		name = strings.TrimSpace(name)
		if len([]rune(name)) < 2 {
			continue
		}
		rank, err := c.res.Text(item, "trending", "hot_search_rank", "")
		if err != nil {
			return topics, err
		}
		heat, err := c.res.Text(item, "trending", "hot_search_heat", "0")
		if err != nil {
			return topics, err
		}
		topics = append(topics, Topic{
			Name:   name,
			Rank:   strings.TrimSpace(rank),
			Heat:   scrape.ParseCount(heat),
			Source: SourceSearchTrending,
		})
	}
	return topics, nil
}

// fromExplore reads topic cards off the explore page.
func (c *Collector) fromExplore(ctx context.Context, page browser.Page, count int) ([]Topic, error) {
	if err := page.Goto(ctx, c.cfg.ExploreURL); err != nil {
		return nil, err
	}
	if err := c.cfg.SettlePause.Sleep(ctx); err != nil {
		return nil, err
	}

	cards, err := c.res.ResolveAll(page, "explore", "topic_card")
	if err != nil {
		return nil, err
	}

	var topics []Topic
	for _, card := range cards {
		if len(topics) >= count {
			break
		}
		name, err := c.res.Text(card, "explore", "topic_name", "")
		if err != nil {
			return topics, err
		}
		name = strings.TrimPrefix(strings.TrimSpace(name), "#")
		if name == "" {
			continue
		}
		views, err := c.res.Text(card, "explore", "topic_view_count", "0")
		if err != nil {
			return topics, err
		}
		var href string
		if link, err := card.Query("a"); err != nil {
			if browser.IsTargetClosed(err) {
				return topics, err
			}
		} else if link != nil {
			href = selector.ElementAttr(link, "href", "")
		}
		topics = append(topics, Topic{
			Name:   name,
			Heat:   scrape.ParseCount(views),
			URL:    href,
			Source: SourceExplorePage,
		})
	}
	return topics, nil
}

// fromFeed is the last resort: scroll the home feed and count hashtag
// occurrences, both as tag links and as inline #话题 text.
func (c *Collector) fromFeed(ctx context.Context, page browser.Page, count int) ([]Topic, error) {
	if err := page.Goto(ctx, c.cfg.HomeURL); err != nil {
		return nil, err
	}
	if err := c.cfg.SettlePause.Sleep(ctx); err != nil {
		return nil, err
	}

	freq := map[string]int{}
	for round := 0; round < c.cfg.FeedScrollRounds; round++ {
		for _, sel := range hashtagSelectors {
			els, err := page.QueryAll(sel)
			if err != nil {
				return rankFeed(freq, count), err
			}
			for _, el := range els {
				name := strings.TrimPrefix(strings.TrimSpace(selector.ElementText(el, "")), "#")
				if n := len([]rune(name)); n >= 2 && n <= 20 {
					freq[name]++
				}
			}
		}
		for _, sel := range feedTextSelectors {
			els, err := page.QueryAll(sel)
			if err != nil {
				return rankFeed(freq, count), err
			}
			for _, el := range els {
				for _, m := range inlineTagRe.FindAllStringSubmatch(selector.ElementText(el, ""), -1) {
					freq[m[1]]++
				}
			}
		}

		if err := page.ScrollBy(ctx, c.cfg.ScrollAmount); err != nil {
			return rankFeed(freq, count), err
		}
		if err := c.cfg.SettlePause.Sleep(ctx); err != nil {
			return rankFeed(freq, count), err
		}
	}
	return rankFeed(freq, count), nil
}

func rankFeed(freq map[string]int, count int) []Topic {
	names := make([]string, 0, len(freq))
	for name := range freq {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if freq[names[i]] != freq[names[j]] {
			return freq[names[i]] > freq[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > count {
		names = names[:count]
	}
	topics := make([]Topic, 0, len(names))
	for _, name := range names {
		topics = append(topics, Topic{
			Name:      name,
			Frequency: freq[name],
			Heat:      int64(freq[name]) * 100,
			Source:    SourceFeedAnalysis,
		})
	}
	return topics
}
