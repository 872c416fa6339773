// Package observability carries pipeline telemetry to pluggable sinks.
//
// Components that need telemetry accept a Sink and emit events; they
// never log directly. Sinks fan out to structured logs, Prometheus,
// and the NATS event bus. Recording is fire-and-forget: a sink failure
// must never fail the request that produced the event.
package observability

import (
	"context"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventQueryReceived    EventType = "query_received"
	EventContextUsage     EventType = "context_usage"
	EventAnswerProduced   EventType = "answer_produced"
	EventPolicyViolation  EventType = "policy_violation"
	EventPipelineError    EventType = "pipeline_error"
	EventPerformance      EventType = "performance"
	EventDocumentIngested EventType = "document_ingested"
	EventAudit            EventType = "audit"
)

// Event is a single telemetry record.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink consumes events.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// MultiSink fans every event out to all member sinks.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, e Event) {}

var (
	_ Sink = (MultiSink)(nil)
	_ Sink = NopSink{}
)
