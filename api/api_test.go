package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/store"
)

func newTestServer(t *testing.T) (*Server, int64) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runID, err := st.SaveBatch(context.Background(), &scrape.BatchResult{
		Keyword:   "美食",
		StartedAt: time.Now(),
		Attempted: 1, Succeeded: 1,
		Records: []*scrape.SummaryRecord{{
			ID: "note1", Title: "探店", URL: "https://www.xiaohongshu.com/explore/note1",
			LikeCount: "100", CapturedAt: time.Now(),
			Detail: scrape.DetailRecord{Body: "正文", Status: scrape.StatusOK},
		}},
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return New(st, nil), runID
}

// WHAT: healthz reports ok.
func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// WHAT: /api/runs lists saved runs with their counters.
func TestListRuns(t *testing.T) {
	srv, runID := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs: %v", err)
	}
	defer resp.Body.Close()

	var runs []store.RunSummary
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID || runs[0].Keyword != "美食" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

// WHAT: notes of a run come back decoded; unknown runs 404.
func TestRunNotes(t *testing.T) {
	srv, runID := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(fmt.Sprintf("%s/api/runs/%d/notes", ts.URL, runID))
	if err != nil {
		t.Fatalf("GET notes: %v", err)
	}
	defer resp.Body.Close()

	var notes []*scrape.SummaryRecord
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "探店" || notes[0].Detail.Status != scrape.StatusOK {
		t.Fatalf("unexpected notes: %+v", notes)
	}

	missing, err := http.Get(ts.URL + "/api/runs/999/notes")
	if err != nil {
		t.Fatalf("GET missing run: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != 404 {
		t.Fatalf("missing run status = %d, want 404", missing.StatusCode)
	}

	bad, err := http.Get(ts.URL + "/api/runs/abc/notes")
	if err != nil {
		t.Fatalf("GET bad id: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != 400 {
		t.Fatalf("bad id status = %d, want 400", bad.StatusCode)
	}
}
