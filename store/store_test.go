package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/trending"
)

func openMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBatch() *scrape.BatchResult {
	return &scrape.BatchResult{
		Keyword:   "美食",
		StartedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Attempted: 2, Succeeded: 1, Errored: 1,
		Records: []*scrape.SummaryRecord{
			{
				ID: "note1", Title: "周末探店", URL: "https://www.xiaohongshu.com/explore/note1",
				LikeCount: "1200", CapturedAt: time.Date(2026, 8, 20, 10, 1, 0, 0, time.UTC),
				Detail: scrape.DetailRecord{
					Body: "正文内容", LikeCount: "1200", CollectCount: "300",
					Tags: []string{"#美食", "#探店"}, Author: "小白",
					Status: scrape.StatusOK,
				},
			},
			{
				ID: "note2", Title: "已下架",
				CapturedAt: time.Date(2026, 8, 20, 10, 2, 0, 0, time.UTC),
				Detail:     scrape.DetailRecord{Status: scrape.StatusNotFound, Err: "note gone"},
			},
		},
	}
}

// WHAT: a saved batch round-trips through Runs and RunNotes.
// WHY: the analyze command re-reads history to build reports.
func TestSaveBatchRoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	runID, err := s.SaveBatch(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].ID != runID || runs[0].Keyword != "美食" || runs[0].Succeeded != 1 {
		t.Fatalf("unexpected run row: %+v", runs[0])
	}

	notes, err := s.RunNotes(ctx, runID)
	if err != nil {
		t.Fatalf("RunNotes: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	got := notes[0]
	if got.Title != "周末探店" || got.Detail.Body != "正文内容" {
		t.Fatalf("unexpected first note: %+v", got)
	}
	if len(got.Detail.Tags) != 2 || got.Detail.Tags[0] != "#美食" {
		t.Fatalf("tags not restored: %v", got.Detail.Tags)
	}
	if got.Detail.Status != scrape.StatusOK {
		t.Fatalf("status = %v, want ok", got.Detail.Status)
	}
	if notes[1].Detail.Status != scrape.StatusNotFound || notes[1].Detail.Err != "note gone" {
		t.Fatalf("error note not restored: %+v", notes[1])
	}
}

// WHAT: two runs list newest first; notes stay scoped to their run.
func TestRunsOrderAndScope(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first, err := s.SaveBatch(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	second := sampleBatch()
	second.Keyword = "旅行"
	second.Records = second.Records[:1]
	secondID, err := s.SaveBatch(ctx, second)
	if err != nil {
		t.Fatalf("SaveBatch second: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != secondID || runs[1].ID != first {
		t.Fatalf("unexpected order: %+v", runs)
	}
	notes, err := s.RunNotes(ctx, secondID)
	if err != nil {
		t.Fatalf("RunNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("second run got %d notes, want 1", len(notes))
	}
}

// WHAT: SaveTopics stores one collection per call.
func TestSaveTopics(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	topics := []trending.Topic{
		{Name: "露营", Rank: "1", Heat: 12000000, Source: trending.SourceSearchTrending},
		{Name: "早餐", Frequency: 4, Source: trending.SourceFeedAnalysis},
	}
	if err := s.SaveTopics(ctx, topics); err != nil {
		t.Fatalf("SaveTopics: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM topics").Scan(&n); err != nil {
		t.Fatalf("count topics: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d topic rows, want 2", n)
	}
	var source string
	if err := s.db.QueryRow("SELECT source FROM topics WHERE name = '早餐'").Scan(&source); err != nil {
		t.Fatalf("select source: %v", err)
	}
	if source != string(trending.SourceFeedAnalysis) {
		t.Fatalf("source = %q", source)
	}
}

// WHAT: ExportJSON names the file by prefix and writes valid JSON.
func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	batch := sampleBatch()

	path, err := ExportJSON(dir, "xhs_美食", batch)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "xhs_美食_") || !strings.HasSuffix(base, ".json") {
		t.Fatalf("unexpected file name %q", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var back scrape.BatchResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if back.Keyword != "美食" || len(back.Records) != 2 {
		t.Fatalf("export lost data: %+v", back)
	}
}
