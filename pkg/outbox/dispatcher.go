package outbox

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/dmehra2102/stock-reservation-engine/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events to one topic, keyed by aggregate id so every event of
// an order or product lands on the same partition.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

// Dispatch writes events in a single produce call. It returns the ids that were written and
// the error for each event that was not.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) (sent []int64, failed map[int64]error) {
	if len(events) == 0 {
		return nil, nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = d.message(e)
	}

	err := d.producer.WriteMessages(ctx, msgs...)
	if err == nil {
		sent = make([]int64, len(events))
		for i, e := range events {
			sent[i] = e.ID
		}
		d.log.Info("outbox batch dispatched", "count", len(events), "topic", d.topic)
		return sent, nil
	}

	failed = make(map[int64]error)
	var perMessage kafka.WriteErrors
	if !errors.As(err, &perMessage) || len(perMessage) != len(events) {
		for _, e := range events {
			failed[e.ID] = err
		}
		d.log.Error("outbox batch dispatch failed", "count", len(events), "err", err)
		return nil, failed
	}
	for i, e := range events {
		if perMessage[i] != nil {
			failed[e.ID] = perMessage[i]
			d.log.Error("outbox dispatch failed", "event_id", e.ID, "type", e.Type, "err", perMessage[i])
			continue
		}
		sent = append(sent, e.ID)
	}
	return sent, failed
}

func (d *Dispatcher) message(e Event) kafka.Message {
	headers := make([]kafka.Header, 0, len(e.Headers)+4)
	for k, v := range e.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: HeaderEventType, Value: []byte(e.Type)},
		kafka.Header{Key: HeaderEventID, Value: []byte(strconv.FormatInt(e.ID, 10))},
		kafka.Header{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
	)
	if e.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: tracing.TraceparentHeader, Value: []byte(e.Traceparent)})
	}
	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: headers,
	}
}
