package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/tracing"
)

const maxAttempts = 3

type Receiver interface {
	Receive(ctx context.Context, r domain.Receipt) (domain.Product, error)
}

// Deduper remembers processed offsets so redelivered receipts are booked once.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer books supplier batch receipts from the receipts topic into the ledger.
type Consumer struct {
	log     *slog.Logger
	reader  MessageReader
	ledger  Receiver
	idem    Deduper
	tracer  trace.Tracer
	backoff time.Duration

	// redelivery is the pause before a message whose retries ran out is tried again.
	redelivery time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, ledger Receiver, idem Deduper) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, ledger, idem)
}

func newConsumer(log *slog.Logger, reader MessageReader, ledger Receiver, idem Deduper) *Consumer {
	return &Consumer{
		log:        log,
		reader:     reader,
		ledger:     ledger,
		idem:       idem,
		tracer:     otel.Tracer("receipts-consumer"),
		backoff:    200 * time.Millisecond,
		redelivery: 2 * time.Second,
	}
}

// Run consumes until ctx is cancelled. An offset is committed only once its receipt is
// booked or rejected for good; a receipt still pending when ctx ends stays uncommitted and
// is redelivered to the group.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			c.log.Info("receipt left uncommitted", "offset", msg.Offset, "err", err)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// process retries msg until handle settles it. Later offsets are not fetched meanwhile, so a
// commit can never skip past an unbooked receipt.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Warn("receipt not booked, retrying", "offset", msg.Offset, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.redelivery):
		}
	}
}

// handle books one receipt. A nil error means the message is settled: booked, a duplicate,
// or rejected permanently. Any other outcome releases the dedup key and returns an error so
// the message is tried again.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// SETNX may have landed before the error surfaced
		c.forget(ctx, key)
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeStockReceipt",
		trace.WithAttributes(attribute.String("messaging.destination.name", msg.Topic)))
	defer span.End()

	var receipt domain.Receipt
	if err := json.Unmarshal(msg.Value, &receipt); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		return nil
	}

	for attempt := 1; ; attempt++ {
		p, err := c.ledger.Receive(msgCtx, receipt)
		if err == nil {
			c.log.Info("receipt booked", "product_id", p.ID, "batch", receipt.BatchRef, "stock_level", p.StockLevel)
			return nil
		}
		if ctx.Err() != nil {
			c.forget(ctx, key)
			return ctx.Err()
		}
		if !transient(err) {
			c.log.Error("receipt rejected", "product_id", receipt.ProductID, "batch", receipt.BatchRef,
				"event_type", tracing.HeaderValue(msg.Headers, "event_type"), "err", err)
			return nil
		}
		if attempt == maxAttempts {
			c.forget(ctx, key)
			return fmt.Errorf("receipt for product %d: %w", receipt.ProductID, err)
		}
		select {
		case <-ctx.Done():
			c.forget(ctx, key)
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) forget(ctx context.Context, key string) {
	if err := c.idem.Forget(context.WithoutCancel(ctx), key); err != nil {
		c.log.Error("idempotency release failed", "key", key, "err", err)
	}
}

func transient(err error) bool {
	return errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrConcurrentUpdate)
}
