package observability

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "ragchat.events."

// NATSSink publishes events to the bus, one subject per event type, so
// downstream consumers can subscribe to ragchat.events.> or a single
// type. Publishing is best-effort.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink creates a sink over an established connection.
func NewNATSSink(conn *nats.Conn) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Record(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	// Publish buffers locally; delivery failures are absorbed by the
	// client's reconnect handling.
	_ = s.conn.Publish(natsSubjectPrefix+string(e.Type), data)
}

var _ Sink = (*NATSSink)(nil)
