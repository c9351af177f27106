// Package scrape collects note summaries from a result feed and enriches
// them with popup detail, tolerating the partial failures a live site
// produces: missing fields, restricted notes, vanished popups, and the
// browser closing mid-batch.
package scrape

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidInput = errors.New("scrape: invalid input")

// Status records how far a note's detail fetch got. The zero value is
// StatusUnfetched so a freshly built record is honest by construction.
type Status int

const (
	StatusUnfetched Status = iota
	StatusOK
	StatusRestricted
	StatusNotFound
	StatusError
)

var statusNames = map[Status]string{
	StatusUnfetched:  "unfetched",
	StatusOK:         "ok",
	StatusRestricted: "restricted",
	StatusNotFound:   "not_found",
	StatusError:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unfetched"
}

// ParseStatus maps a stored name back to its Status; unknown names come
// back as StatusUnfetched.
func ParseStatus(name string) Status {
	for st, n := range statusNames {
		if n == name {
			return st
		}
	}
	return StatusUnfetched
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	*s = ParseStatus(name)
	return nil
}

// SummaryRecord is one note as seen in the list feed.
type SummaryRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	LikeCount  string    `json:"like_count"`
	CapturedAt time.Time `json:"captured_at"`

	Detail DetailRecord `json:"detail"`
}

// DetailRecord holds what the detail popup yielded.
type DetailRecord struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	BodyHTML     string   `json:"-"`
	LikeCount    string   `json:"like_count,omitempty"`
	CollectCount string   `json:"collect_count,omitempty"`
	CommentCount string   `json:"comment_count,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	PublishTime  string   `json:"publish_time,omitempty"`
	Author       string   `json:"author,omitempty"`
	DetailURL    string   `json:"detail_url,omitempty"`

	Status Status `json:"status"`
	Err    string `json:"error,omitempty"`
}

// Merge copies non-empty fields of other into d. Status and Err always
// follow other: they describe the most recent fetch attempt.
func (d *DetailRecord) Merge(other *DetailRecord) {
	if other == nil {
		return
	}
	if other.Title != "" {
		d.Title = other.Title
	}
	if other.Body != "" {
		d.Body = other.Body
	}
	if other.BodyHTML != "" {
		d.BodyHTML = other.BodyHTML
	}
	if other.LikeCount != "" {
		d.LikeCount = other.LikeCount
	}
	if other.CollectCount != "" {
		d.CollectCount = other.CollectCount
	}
	if other.CommentCount != "" {
		d.CommentCount = other.CommentCount
	}
	if len(other.Tags) > 0 {
		d.Tags = other.Tags
	}
	if other.PublishTime != "" {
		d.PublishTime = other.PublishTime
	}
	if other.Author != "" {
		d.Author = other.Author
	}
	if other.DetailURL != "" {
		d.DetailURL = other.DetailURL
	}
	d.Status = other.Status
	d.Err = other.Err
}

// BatchResult is what a pipeline run produced, complete or not.
type BatchResult struct {
	Keyword   string           `json:"keyword,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Records   []*SummaryRecord `json:"records"`

	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

// Count tallies the record under the counter matching its detail status.
func (b *BatchResult) Count(rec *SummaryRecord) {
	b.Attempted++
	switch rec.Detail.Status {
	case StatusOK:
		b.Succeeded++
	case StatusRestricted, StatusNotFound, StatusError:
		b.Errored++
	default:
		b.Skipped++
	}
}
