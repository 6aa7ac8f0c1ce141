package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewEventWriter returns the writer the outbox relay publishes order and stock events
// through. The topic is taken from each message.
func NewEventWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
