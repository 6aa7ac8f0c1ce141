package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// NewEvent marshals payload and captures the trace context of ctx so the relay can
// continue the trace when the event is published.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       b,
		Headers:       map[string]string{"source": "stock-service"},
		Traceparent:   carrier.Get(tracing.TraceparentHeader),
		Status:        StatusPending,
	}, nil
}
