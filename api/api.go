// Package api exposes stored run history over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/carnet/store"
)

// Server serves read-only access to the run database.
type Server struct {
	store  *store.Store
	logger *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.store.Runs(r.Context())
		if err != nil {
			s.logger.Error("list runs", "error", err)
			writeError(w, 500, err)
			return
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		writeJSON(w, 200, runs)
	})

	r.Get("/api/runs/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		notes, err := s.store.RunNotes(r.Context(), id)
		if err != nil {
			s.logger.Error("list run notes", "run_id", id, "error", err)
			writeError(w, 500, err)
			return
		}
		if len(notes) == 0 {
			writeJSON(w, 404, map[string]string{"error": "run not found or empty"})
			return
		}
		writeJSON(w, 200, notes)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
