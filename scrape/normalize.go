package scrape

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// NormalizeNoteURL normalizes a note URL for dedup comparison: lowercases
// scheme and host, removes the fragment, strips the trailing slash (except
// root), and sorts query params. It does not upgrade http to https.
func NormalizeNoteURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" && strings.Contains(raw, " ") {
		return "", fmt.Errorf("%w: malformed URL", ErrInvalidInput)
	}

	// Feed anchors are often host-relative; keep them comparable as-is.
	if scheme == "" {
		return raw, nil
	}
	if scheme != "http" && scheme != "https" {
		return raw, nil
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for i, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String(), nil
}

// recordKey is the dedup key for a summary: the normalized URL when one
// exists, else the title. Title collisions are last-write-wins.
func recordKey(title, rawURL string) string {
	if rawURL != "" {
		if norm, err := NormalizeNoteURL(rawURL); err == nil {
			return "url:" + norm
		}
	}
	return "title:" + title
}

// noteID derives a stable record ID: the last path segment of the note URL
// when it looks like one, else a digest of the dedup key.
func noteID(title, rawURL string) string {
	if rawURL != "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			path := strings.TrimRight(parsed.Path, "/")
			if i := strings.LastIndexByte(path, '/'); i >= 0 && i+1 < len(path) {
				return path[i+1:]
			}
		}
	}
	sum := sha1.Sum([]byte(recordKey(title, rawURL)))
	return hex.EncodeToString(sum[:])[:16]
}
