package observability

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LogSink writes events to a structured logger. Violations log at warn
// and pipeline errors at error so they stand out in aggregators.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink over the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	attrs := make([]slog.Attr, 0, len(e.Fields)+2)
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", e.SessionID))
	}
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelInfo
	switch e.Type {
	case EventPolicyViolation:
		level = slog.LevelWarn
	case EventPipelineError:
		level = slog.LevelError
	}

	s.logger.LogAttrs(ctx, level, string(e.Type), attrs...)
}

// CounterSink keeps in-process totals per event type, for cheap
// exposure on the stats endpoint.
type CounterSink struct {
	counters map[EventType]*atomic.Int64
}

// NewCounterSink creates a sink counting all known event types.
func NewCounterSink() *CounterSink {
	types := []EventType{
		EventQueryReceived,
		EventContextUsage,
		EventAnswerProduced,
		EventPolicyViolation,
		EventPipelineError,
		EventPerformance,
		EventDocumentIngested,
		EventAudit,
	}
	counters := make(map[EventType]*atomic.Int64, len(types))
	for _, t := range types {
		counters[t] = &atomic.Int64{}
	}
	return &CounterSink{counters: counters}
}

func (s *CounterSink) Record(ctx context.Context, e Event) {
	if c, ok := s.counters[e.Type]; ok {
		c.Add(1)
	}
}

// Snapshot returns the current totals keyed by event type.
func (s *CounterSink) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(s.counters))
	for t, c := range s.counters {
		out[string(t)] = c.Load()
	}
	return out
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*CounterSink)(nil)
)
