package scrape

import (
	"log/slog"
	"time"
)

// Event is one progress notification from the scrapers. Kind is a stable
// machine-readable tag; Fields carry the kind-specific payload.
type Event struct {
	Kind   string
	At     time.Time
	Fields map[string]any
}

// EventSink receives progress events. Implementations must not block;
// the scrapers call Emit inline from their loops.
type EventSink interface {
	Emit(ev Event)
}

// LogSink writes events as structured log records.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Emit(ev Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := make([]any, 0, 2*len(ev.Fields))
	for k, v := range ev.Fields {
		attrs = append(attrs, k, v)
	}
	log.Info("scrape: "+ev.Kind, attrs...)
}

// nopSink drops events; used when the caller passes no sink.
type nopSink struct{}

func (nopSink) Emit(Event) {}

func emit(sink EventSink, kind string, fields map[string]any) {
	sink.Emit(Event{Kind: kind, At: time.Now(), Fields: fields})
}
