// Package quality vets a draft against the platform's writing norms before
// publication: no AI-sounding boilerplate, no fabricated specifics, natural
// emotional register.
package quality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Guidelines hold the tunable rules. Zero fields fall back to the built-in
// defaults, so an override file only needs the rules it changes.
type Guidelines struct {
	// ForbiddenPatterns are AI-sounding phrases. A pattern containing "…"
	// is a multi-part pattern: it fires when all parts appear anywhere in
	// the text, catching 首先…其次…最后 style scaffolding.
	ForbiddenPatterns []string `yaml:"forbidden_patterns"`

	MinBodyLength int `yaml:"min_body_length"`
	MaxBodyLength int `yaml:"max_body_length"`

	MaxTitleLength int `yaml:"max_title_length"`
	MaxTitleEmoji  int `yaml:"max_title_emoji"`
	MaxBodyEmoji   int `yaml:"max_body_emoji"`

	// ExclaimRunLimit is how many consecutive heated sentences trigger an
	// emotion-density warning.
	ExclaimRunLimit int `yaml:"exclaim_run_limit"`
}

// DefaultGuidelines returns the built-in rule set.
func DefaultGuidelines() Guidelines {
	return Guidelines{
		ForbiddenPatterns: []string{
			"首先…其次…最后",
			"首先…然后…最后",
			"总的来说",
			"总而言之",
			"综上所述",
			"不难发现",
			"值得一提的是",
			"众所周知",
			"让我们一起",
			"赋能",
			"闭环",
			"抓手",
			"底层逻辑",
			"干货满满",
			"建议收藏",
			"码住",
		},
		MinBodyLength:   100,
		MaxBodyLength:   1000,
		MaxTitleLength:  20,
		MaxTitleEmoji:   3,
		MaxBodyEmoji:    10,
		ExclaimRunLimit: 3,
	}
}

// LoadGuidelines reads a YAML override file layered over the defaults.
func LoadGuidelines(path string) (Guidelines, error) {
	g := DefaultGuidelines()
	data, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("quality: read guidelines: %w", err)
	}
	var override Guidelines
	if err := yaml.Unmarshal(data, &override); err != nil {
		return g, fmt.Errorf("quality: parse guidelines: %w", err)
	}
	if len(override.ForbiddenPatterns) > 0 {
		g.ForbiddenPatterns = override.ForbiddenPatterns
	}
	if override.MinBodyLength > 0 {
		g.MinBodyLength = override.MinBodyLength
	}
	if override.MaxBodyLength > 0 {
		g.MaxBodyLength = override.MaxBodyLength
	}
	if override.MaxTitleLength > 0 {
		g.MaxTitleLength = override.MaxTitleLength
	}
	if override.MaxTitleEmoji > 0 {
		g.MaxTitleEmoji = override.MaxTitleEmoji
	}
	if override.MaxBodyEmoji > 0 {
		g.MaxBodyEmoji = override.MaxBodyEmoji
	}
	if override.ExclaimRunLimit > 0 {
		g.ExclaimRunLimit = override.ExclaimRunLimit
	}
	return g, nil
}
