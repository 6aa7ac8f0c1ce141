package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(batchSize, len(s.pending))
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = msg
	return nil
}

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failOn string
	down   bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errors.New("broker unavailable")
	}
	var werrs kafka.WriteErrors
	for i, m := range msgs {
		if string(m.Key) == p.failOn {
			if werrs == nil {
				werrs = make(kafka.WriteErrors, len(msgs))
			}
			werrs[i] = kafka.LeaderNotAvailable
			continue
		}
		p.msgs = append(p.msgs, m)
	}
	if werrs != nil {
		return werrs
	}
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRelayFlush_SendsAndMarks(t *testing.T) {
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "o-1", Type: "OrderReserved", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
		{ID: 2, AggregateID: "o-2", Type: "OrderCancelled", Payload: []byte(`{}`)},
		{ID: 3, AggregateID: "bad", Type: "OrderApproved", Payload: []byte(`{}`)},
	}}
	producer := &fakeProducer{failOn: "bad"}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "order.events"), "test-relay")

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, store.sent)
	assert.Contains(t, store.failed, int64(3))
	require.Len(t, producer.msgs, 2)

	first := producer.msgs[0]
	assert.Equal(t, "order.events", first.Topic)
	assert.Equal(t, "o-1", string(first.Key))
	headers := map[string]string{}
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderReserved", headers[HeaderEventType])
	assert.Equal(t, "1", headers[HeaderEventID])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
}

func TestRelayFlush_BrokerDownFailsWholeBatch(t *testing.T) {
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "o-1", Type: "OrderReserved"},
		{ID: 2, AggregateID: "7", AggregateType: "product", Type: "LowStockDetected"},
	}}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{down: true}, "stock.events"), "test-relay")

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, store.sent)
	assert.Len(t, store.failed, 2)
	assert.Equal(t, "broker unavailable", store.failed[2])
}

func TestRelayRun_StopsOnCancel(t *testing.T) {
	store := &fakeStore{pending: []Event{{ID: 9, AggregateID: "o-9", Type: "OrderReserved"}}}
	producer := &fakeProducer{}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "order.events"), "test-relay",
		WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(context.Background(), "order", "o-1", "OrderReserved", map[string]int{"qty": 2})
	require.NoError(t, err)

	assert.Equal(t, "order", ev.AggregateType)
	assert.Equal(t, "o-1", ev.AggregateID)
	assert.JSONEq(t, `{"qty":2}`, string(ev.Payload))
	assert.Equal(t, StatusPending, ev.Status)
}
