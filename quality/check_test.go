package quality

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newChecker() *Checker { return NewChecker(DefaultGuidelines()) }

// calm is a body that trips no rule, used as padding.
var calm = strings.Repeat("今天路过街角的小店，点了一杯常喝的拿铁，坐在窗边看了会儿书。", 4)

// WHAT: a multi-part forbidden pattern fires when all its parts appear,
// even far apart, and drops the score by the error weight.
func TestCheckAIPatternMultiPart(t *testing.T) {
	body := "首先要准备材料。" + calm + "其次是步骤。最后收尾。"
	res := newChecker().Check("记录", body, nil)
	if res.Passed() {
		t.Fatal("multi-part AI pattern not caught")
	}
	found := false
	for _, e := range res.Errors {
		if e.Rule == "ai_pattern" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no ai_pattern error: %+v", res.Errors)
	}
	if res.Score > 85 {
		t.Fatalf("score = %d, want ≤85 after one error", res.Score)
	}
}

// WHAT: a literal forbidden phrase is an error with context.
func TestCheckAIPatternLiteral(t *testing.T) {
	res := newChecker().Check("记录", calm+"总的来说这家店不错。", nil)
	if res.Passed() {
		t.Fatal("literal AI phrase not caught")
	}
	if res.Errors[0].Context == "" {
		t.Fatal("error carries no context")
	}
}

// WHAT: specific times and prices are fabrication warnings unless they are
// in the author's fact whitelist.
func TestCheckFabricationWhitelist(t *testing.T) {
	body := calm + "早上9点出门，人均68元。"

	res := newChecker().Check("记录", body, nil)
	var fab int
	for _, w := range res.Warnings {
		if w.Rule == "fabrication_risk" {
			fab++
		}
	}
	if fab < 2 {
		t.Fatalf("fabrication warnings = %d, want ≥2: %+v", fab, res.Warnings)
	}

	res = newChecker().Check("记录", body, &KnownFacts{
		Times:  []string{"早上9点"},
		Prices: []string{"68"},
	})
	for _, w := range res.Warnings {
		if w.Rule == "fabrication_risk" {
			t.Fatalf("whitelisted fact still warned: %+v", w)
		}
	}
}

// WHAT: hearsay phrasing is flagged.
func TestCheckHearsay(t *testing.T) {
	res := newChecker().Check("记录", calm+"闺蜜推荐的这家店。", nil)
	found := false
	for _, w := range res.Warnings {
		if w.Rule == "fabrication_risk" && strings.Contains(w.Message, "转述") {
			found = true
		}
	}
	if !found {
		t.Fatalf("hearsay not flagged: %+v", res.Warnings)
	}
}

// WHAT: three consecutive heated sentences trigger one density warning.
func TestCheckEmotionDensity(t *testing.T) {
	body := calm + "太好吃了！太香了根本停不下来！啊啊啊下次还要来！"
	res := newChecker().Check("记录", body, nil)
	found := false
	for _, w := range res.Warnings {
		if w.Rule == "emotion_density" {
			found = true
		}
	}
	if !found {
		t.Fatalf("emotion run not flagged: %+v", res.Warnings)
	}
}

// WHAT: length bounds and title rules are warnings, not errors.
func TestCheckLengthAndTitle(t *testing.T) {
	res := newChecker().Check("震惊！这个标题实在太长太长太长太长太长了吧", "太短", nil)
	if !res.Passed() {
		t.Fatalf("warnings must not block publication: %+v", res.Errors)
	}
	rules := map[string]bool{}
	for _, w := range res.Warnings {
		rules[w.Rule] = true
	}
	if !rules["length"] || !rules["title"] {
		t.Fatalf("missing length/title warnings: %+v", res.Warnings)
	}
}

// WHAT: a clean draft passes with a full score and positive suggestions.
func TestCheckCleanDraft(t *testing.T) {
	res := newChecker().Check("街角的小店", calm, nil)
	if !res.Passed() || res.Score != 100 {
		t.Fatalf("clean draft: passed=%v score=%d errors=%+v warnings=%+v",
			res.Passed(), res.Score, res.Errors, res.Warnings)
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("no suggestions on clean draft")
	}
}

// WHAT: a YAML override replaces only the fields it sets.
func TestLoadGuidelines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guidelines.yaml")
	if err := os.WriteFile(path, []byte("max_title_length: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadGuidelines(path)
	if err != nil {
		t.Fatalf("LoadGuidelines: %v", err)
	}
	if g.MaxTitleLength != 10 {
		t.Fatalf("override ignored: %d", g.MaxTitleLength)
	}
	if len(g.ForbiddenPatterns) == 0 {
		t.Fatal("defaults lost on override")
	}
}
