package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Issue is one rule violation with the text that triggered it.
type Issue struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// Result scores a draft. Errors block publication; warnings do not.
type Result struct {
	Errors      []Issue  `json:"errors"`
	Warnings    []Issue  `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	Score       int      `json:"score"`
}

// Passed reports whether the draft may be published.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

func (r *Result) addError(rule, message, context string) {
	r.Errors = append(r.Errors, Issue{Rule: rule, Message: message, Context: context})
	r.Score = max(0, r.Score-15)
}

func (r *Result) addWarning(rule, message, context string) {
	r.Warnings = append(r.Warnings, Issue{Rule: rule, Message: message, Context: context})
	r.Score = max(0, r.Score-5)
}

// KnownFacts whitelist specifics the author vouches for, so real times and
// prices do not trip the fabrication check.
type KnownFacts struct {
	Times  []string `yaml:"times" json:"times"`
	Prices []string `yaml:"prices" json:"prices"`
	Places []string `yaml:"places" json:"places"`
}

func whitelisted(list []string, value string) bool {
	for _, v := range list {
		if strings.Contains(v, value) || strings.Contains(value, v) {
			return true
		}
	}
	return false
}

var (
	timeRe    = regexp.MustCompile(`(早上|上午|中午|下午|晚上|凌晨)?\s*(\d{1,2})[:：点](\d{0,2})`)
	priceRe   = regexp.MustCompile(`(\d+\.?\d*)\s*[元块¥￥]|人均\s*(\d+)`)
	hearsayRe = regexp.MustCompile(`(朋友|同事|闺蜜|老公|老婆|室友|同学)\s*(说|推荐|安利|告诉我)`)
	emojiRe   = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}]`)
	sentSplit = regexp.MustCompile(`[。！？!?\n]`)
)

// Checker runs the rule set over a draft.
type Checker struct {
	g Guidelines
}

func NewChecker(g Guidelines) *Checker {
	return &Checker{g: g}
}

// Check vets title and body. facts may be nil.
func (c *Checker) Check(title, body string, facts *KnownFacts) *Result {
	res := &Result{Score: 100}

	aiHits := c.checkAIPatterns(title, body, res)
	fabHits := c.checkFabrication(body, facts, res)
	c.checkEmotion(body, res)
	c.checkLength(body, res)
	c.checkTitle(title, res)

	if aiHits == 0 {
		res.Suggestions = append(res.Suggestions, "未检测到 AI 感表达，语气自然")
	}
	if fabHits == 0 {
		res.Suggestions = append(res.Suggestions, "未检测到可疑的事实捏造")
	}
	if len([]rune(body)) > 150 && !strings.ContainsAny(body, "…—") && !strings.Contains(body, "...") {
		res.Suggestions = append(res.Suggestions, "可以适当加入省略号或破折号，制造留白和停顿感")
	}
	return res
}

func (c *Checker) checkAIPatterns(title, body string, res *Result) int {
	full := title + " " + body
	hits := 0
	for _, pattern := range c.g.ForbiddenPatterns {
		if strings.Contains(pattern, "…") {
			parts := splitParts(pattern)
			if len(parts) >= 2 && allContained(full, parts) {
				res.addError("ai_pattern", fmt.Sprintf("检测到 AI 感表达「%s」", pattern), pattern)
				hits++
			}
			continue
		}
		if idx := strings.Index(full, pattern); idx >= 0 {
			res.addError("ai_pattern", fmt.Sprintf("检测到 AI 感表达「%s」", pattern), snippet(full, idx, len(pattern)))
			hits++
		}
	}
	return hits
}

func splitParts(pattern string) []string {
	var parts []string
	for _, p := range strings.Split(pattern, "…") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func allContained(text string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}

// snippet returns the match with a little surrounding context, widened to
// rune boundaries.
func snippet(text string, idx, width int) string {
	lo := idx - 30
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := idx + width + 30
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return "..." + text[lo:hi] + "..."
}

func (c *Checker) checkFabrication(body string, facts *KnownFacts, res *Result) int {
	var times, prices []string
	if facts != nil {
		times, prices = facts.Times, facts.Prices
	}

	hits := 0
	for _, m := range timeRe.FindAllStringSubmatch(body, -1) {
		value := strings.TrimSpace(m[0])
		if whitelisted(times, value) {
			continue
		}
		res.addWarning("fabrication_risk",
			fmt.Sprintf("检测到具体时间「%s」，请确认是否为真实信息", value), value)
		hits++
	}
	for _, m := range priceRe.FindAllStringSubmatch(body, -1) {
		value := m[1]
		if value == "" {
			value = m[2]
		}
		if whitelisted(prices, value) {
			continue
		}
		res.addWarning("fabrication_risk",
			fmt.Sprintf("检测到具体价格「%s元」，请确认是否为真实信息", value), value)
		hits++
	}
	for _, m := range hearsayRe.FindAllStringSubmatch(body, -1) {
		res.addWarning("fabrication_risk",
			fmt.Sprintf("检测到他人转述「%s」，请确认是否为真实经历", m[0]), m[0])
		hits++
	}
	return hits
}

// checkEmotion flags runs of heated sentences and emoji overload.
func (c *Checker) checkEmotion(body string, res *Result) {
	run := 0
	for _, sent := range sentSplit.Split(body, -1) {
		sent = strings.TrimSpace(sent)
		if len([]rune(sent)) <= 2 {
			continue
		}
		if isHeated(sent) {
			run++
			if run == c.g.ExclaimRunLimit {
				res.addWarning("emotion_density",
					fmt.Sprintf("连续 %d 句情绪激动的句子，建议穿插平淡叙述来降温", run),
					string([]rune(sent)[:min(15, len([]rune(sent)))]))
			}
		} else {
			run = 0
		}
	}

	if n := len(emojiRe.FindAllString(body, -1)); n > c.g.MaxBodyEmoji {
		res.addWarning("emotion_density",
			fmt.Sprintf("检测到 %d 个 emoji，建议控制在 3-6 个", n), "")
	}
}

func isHeated(sent string) bool {
	if strings.Contains(sent, "啊啊") {
		return true
	}
	if strings.Contains(sent, "太") && (strings.Contains(sent, "了") || strings.Contains(sent, "！")) {
		return true
	}
	return strings.HasSuffix(sent, "！") || strings.HasSuffix(sent, "!")
}

func (c *Checker) checkLength(body string, res *Result) {
	n := len([]rune(body))
	if n < c.g.MinBodyLength {
		res.addWarning("length",
			fmt.Sprintf("正文 %d 字，不足 %d 字，信息量太少，建议补充细节和个人感受", n, c.g.MinBodyLength), "")
	}
	if n > c.g.MaxBodyLength {
		res.addWarning("length",
			fmt.Sprintf("正文 %d 字，超过 %d 字，手机端阅读压力大，建议精简", n, c.g.MaxBodyLength), "")
	}
}

func (c *Checker) checkTitle(title string, res *Result) {
	if n := len([]rune(title)); n > c.g.MaxTitleLength {
		res.addWarning("title",
			fmt.Sprintf("标题 %d 字，建议不超过 %d 字", n, c.g.MaxTitleLength), title)
	}
	if strings.HasPrefix(title, "震惊") {
		res.addWarning("title", "以「震惊」开头的标题已经被人反感了，换个方式", title)
	}
	if n := len(emojiRe.FindAllString(title, -1)); n > c.g.MaxTitleEmoji {
		res.addWarning("title",
			fmt.Sprintf("标题中有 %d 个 emoji，建议最多 1-2 个", n), title)
	}
}
