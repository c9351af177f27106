package scrape

import "testing"

// WHAT: rendered count suffixes parse to their numeric values.
func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"345", 345},
		{"2,345", 2345},
		{"1.2万", 12000},
		{"10w", 100000},
		{"10W", 100000},
		{"3k", 3000},
		{"4千", 4000},
		{"2亿", 200000000},
		{"1000+", 1000},
		{" 56 ", 56},
		{"赞", 0},
	}
	for _, tc := range cases {
		if got := ParseCount(tc.in); got != tc.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// WHAT: normalization makes trivially different note URLs compare equal.
func TestNormalizeNoteURL(t *testing.T) {
	a, err := NormalizeNoteURL("HTTPS://WWW.Example.com/explore/abc123/?b=2&a=1#frag")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeNoteURL("https://www.example.com/explore/abc123?a=1&b=2")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("normalized forms differ: %q vs %q", a, b)
	}
	if _, err := NormalizeNoteURL(""); err == nil {
		t.Fatal("empty URL accepted")
	}
}

// WHAT: noteID uses the URL's last path segment when present, and records
// without a URL get a stable digest of their title.
func TestNoteID(t *testing.T) {
	if got := noteID("t", "https://www.example.com/explore/abc123?x=1"); got != "abc123" {
		t.Fatalf("noteID = %q, want abc123", got)
	}
	first := noteID("标题", "")
	second := noteID("标题", "")
	if first == "" || first != second {
		t.Fatalf("title-derived ID not stable: %q vs %q", first, second)
	}
}
