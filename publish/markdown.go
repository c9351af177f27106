package publish

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphRe    = regexp.MustCompile(`\*{1,3}([^*]*?)\*{1,3}`)
	imageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// StripMarkdown reduces a Markdown document to the plain text the note
// editor accepts: frontmatter, heading markers, emphasis, images, and link
// targets are dropped; link texts stay.
func StripMarkdown(content string) string {
	if strings.HasPrefix(content, "---") {
		if parts := strings.SplitN(content, "---", 3); len(parts) == 3 {
			content = strings.TrimSpace(parts[2])
		}
	}
	content = headingRe.ReplaceAllString(content, "")
	content = imageRe.ReplaceAllString(content, "")
	content = emphRe.ReplaceAllString(content, "$1")
	content = linkRe.ReplaceAllString(content, "$1")
	return strings.TrimSpace(content)
}
