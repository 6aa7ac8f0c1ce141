//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	inventoryapp "github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	inventorykafka "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/kafka"
	inventorypg "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/postgres"
	orderapp "github.com/dmehra2102/stock-reservation-engine/internal/order/application"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	orderkafka "github.com/dmehra2102/stock-reservation-engine/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/stock-reservation-engine/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
	"github.com/dmehra2102/stock-reservation-engine/pkg/idempotency"
	"github.com/dmehra2102/stock-reservation-engine/pkg/logging"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

var (
	alice   = identity.Actor{ID: "alice", Role: identity.RoleCustomer}
	manager = identity.Actor{ID: "mgr", Role: identity.RoleManager}
)

type StockSuite struct {
	suite.Suite
	ctx    context.Context
	env    *Env
	pool   *pgxpool.Pool
	rdb    *redis.Client
	stock  *inventorypg.Repository
	orders *orderpg.Repository
	ledger *inventoryapp.Ledger
	svc    *orderapp.Service
}

func TestStockSuite(t *testing.T) {
	suite.Run(t, new(StockSuite))
}

func (s *StockSuite) SetupSuite() {
	s.ctx = context.Background()
	env, err := Setup(s.ctx)
	s.Require().NoError(err)
	s.env = env

	s.pool, err = postgres.Connect(s.ctx, env.PGURL)
	s.Require().NoError(err)
	s.Require().NoError(postgres.Migrate(s.ctx, s.pool))

	opts, err := redis.ParseURL(env.RedisAddr)
	s.Require().NoError(err)
	s.rdb = redis.NewClient(opts)
}

func (s *StockSuite) TearDownSuite() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.env != nil {
		_ = s.env.Teardown(context.Background())
	}
}

func (s *StockSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx,
		`TRUNCATE order_items, orders, stock_movements, outbox, products RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
	s.Require().NoError(s.rdb.FlushDB(s.ctx).Err())

	s.stock = inventorypg.NewRepository(logging.Discard(), s.pool, time.Second)
	s.orders = orderpg.NewRepository(logging.Discard(), s.pool, time.Second)
	s.ledger = inventoryapp.NewLedger(logging.Discard(), s.stock, time.Second)
	s.svc = orderapp.NewService(logging.Discard(), s.orders, s.ledger, time.Second)

	for _, p := range []inventory.Product{
		{ID: 1, Name: "Pen", StockLevel: 10, PriceCents: 150, ReorderThreshold: 2},
		{ID: 2, Name: "Notebook", StockLevel: 5, PriceCents: 400},
	} {
		_, err := s.ledger.RegisterProduct(s.ctx, p)
		s.Require().NoError(err)
	}
}

func (s *StockSuite) levels(id int64) inventory.Levels {
	p, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	return p.Levels()
}

func (s *StockSuite) TestReserveCancelRoundTrip() {
	o, err := s.svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{
		{ProductID: 1, Quantity: 4}, {ProductID: 2, Quantity: 1},
	}})
	s.Require().NoError(err)
	s.Equal(domain.StatusReserved, o.Status)
	s.Equal(inventory.Levels{StockLevel: 6, ReservedStock: 4}, s.levels(1))

	got, err := s.svc.Get(s.ctx, alice, o.ID)
	s.Require().NoError(err)
	s.Len(got.Items, 2)
	s.Equal(int64(4*150+400), got.TotalCents)

	_, err = s.svc.Cancel(s.ctx, alice, o.ID)
	s.Require().NoError(err)
	s.Equal(inventory.Levels{StockLevel: 10, ReservedStock: 0}, s.levels(1))
	s.Equal(inventory.Levels{StockLevel: 5, ReservedStock: 0}, s.levels(2))

	moves, err := s.ledger.Movements(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(moves, 2)
	s.Equal(inventory.MovementRelease, moves[0].Kind)
	s.Equal(o.ID, moves[0].Reference)
}

func (s *StockSuite) TestApproveAndCompleteFinalizes() {
	o, err := s.svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{{ProductID: 1, Quantity: 3}}})
	s.Require().NoError(err)

	done, err := orderapp.NewGateway(s.svc).ApproveAndComplete(s.ctx, manager, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, done.Status)
	s.NotNil(done.ApprovedAt)
	s.NotNil(done.CompletedAt)
	s.Equal(inventory.Levels{StockLevel: 7, ReservedStock: 0}, s.levels(1))

	top, err := s.svc.TopSelling(s.ctx, manager, 5)
	s.Require().NoError(err)
	s.Require().Len(top, 1)
	s.Equal(3, top[0].Quantity)
	s.Equal(int64(450), top[0].RevenueCents)
}

func (s *StockSuite) TestInsufficientStockLeavesNothingBehind() {
	_, err := s.svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{
		{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 6},
	}})
	var insufficient *inventory.InsufficientStockError
	s.Require().ErrorAs(err, &insufficient)
	s.Equal(int64(2), insufficient.ProductID)

	s.Equal(inventory.Levels{StockLevel: 10}, s.levels(1))
	orders, err := s.svc.List(s.ctx, manager, "")
	s.Require().NoError(err)
	s.Empty(orders)
}

// Two ledgers model two service instances that share only the database.
func (s *StockSuite) TestIndependentInstancesNeverOversell() {
	other := orderapp.NewService(logging.Discard(), s.orders,
		inventoryapp.NewLedger(logging.Discard(), s.stock, time.Second), time.Second)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		errs []error
	)
	for i := 0; i < 12; i++ {
		svc := s.svc
		if i%2 == 1 {
			svc = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{{ProductID: 2, Quantity: 1}}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	s.LessOrEqual(won, 5)
	for _, err := range errs {
		var insufficient *inventory.InsufficientStockError
		s.True(errors.As(err, &insufficient) ||
			errors.Is(err, inventory.ErrBusy) ||
			errors.Is(err, inventory.ErrConcurrentUpdate), "unexpected error %v", err)
	}
	lv := s.levels(2)
	s.Equal(won, lv.ReservedStock)
	s.Equal(5-won, lv.StockLevel)
}

func (s *StockSuite) TestTransitionRejectsStaleStatus() {
	o, err := s.svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{{ProductID: 1, Quantity: 1}}})
	s.Require().NoError(err)

	approved, err := o.Apply(domain.EventApprove, time.Now())
	s.Require().NoError(err)
	err = s.orders.Transition(s.ctx, approved, domain.StatusApproved, nil, nil)
	s.ErrorIs(err, domain.ErrStaleOrder)

	approved.ID = "missing"
	err = s.orders.Transition(s.ctx, approved, domain.StatusReserved, nil, nil)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *StockSuite) TestRelayPublishesOrderEvents() {
	topic := "stock-events-it"
	s.createTopic(topic)

	o, err := s.svc.PlaceOrder(s.ctx, alice, domain.Cart{Lines: []domain.CartLine{{ProductID: 1, Quantity: 9}}})
	s.Require().NoError(err)

	writer := orderkafka.NewEventWriter(s.env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(logging.Discard(), postgres.NewOutboxStore(logging.Discard(), s.pool),
		outbox.NewDispatcher(logging.Discard(), writer, topic), "relay-it")

	n, err := relay.Flush(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n) // LowStockDetected and OrderReserved

	n, err = relay.Flush(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: s.env.KAddr, Topic: topic, MaxWait: 500 * time.Millisecond})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	types := map[string]string{}
	for len(types) < 2 {
		msg, err := reader.ReadMessage(ctx)
		s.Require().NoError(err)
		for _, h := range msg.Headers {
			if h.Key == "event_type" {
				types[string(h.Value)] = string(msg.Key)
			}
		}
	}
	s.Equal(o.ID, types[domain.EventOrderReserved])
	s.Equal("1", types[inventory.EventLowStockDetected])
}

func (s *StockSuite) TestReceiptConsumerBooksOnce() {
	topic := "stock-receipts-it"
	s.createTopic(topic)

	idem := idempotency.NewStore(s.rdb, time.Hour)
	consumer := inventorykafka.NewConsumer(logging.Discard(), s.env.KAddr, topic, "receipts-it", s.ledger, idem)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	defer func() {
		cancel()
		s.NoError(<-done)
	}()

	body, err := json.Marshal(inventory.Receipt{ProductID: 2, Quantity: 7, BatchRef: "B-1"})
	s.Require().NoError(err)
	w := &kafka.Writer{Addr: kafka.TCP(s.env.KAddr...), Topic: topic}
	defer w.Close()
	s.Require().NoError(w.WriteMessages(s.ctx, kafka.Message{Key: []byte("2"), Value: body}))

	s.Eventually(func() bool { return s.levels(2).StockLevel == 12 }, 60*time.Second, 200*time.Millisecond)
}

func (s *StockSuite) TestIdempotencyClaims() {
	idem := idempotency.NewStore(s.rdb, time.Minute)
	key := idem.RequestKey("orders", "alice", "k-1")

	_, claimed, err := idem.Claim(s.ctx, key)
	s.Require().NoError(err)
	s.True(claimed)

	_, _, err = idem.Claim(s.ctx, key)
	s.ErrorIs(err, idempotency.ErrInFlight)

	s.Require().NoError(idem.Complete(s.ctx, key, "order-1"))
	result, claimed, err := idem.Claim(s.ctx, key)
	s.Require().NoError(err)
	s.False(claimed)
	s.Equal("order-1", result)

	s.Require().NoError(idem.Forget(s.ctx, key))
	_, claimed, err = idem.Claim(s.ctx, key)
	s.Require().NoError(err)
	s.True(claimed)

	seen, err := idem.Seen(s.ctx, idem.Key("t", 0, 1))
	s.Require().NoError(err)
	s.False(seen)
	seen, err = idem.Seen(s.ctx, idem.Key("t", 0, 1))
	s.Require().NoError(err)
	s.True(seen)
}

func (s *StockSuite) createTopic(topic string) {
	client := &kafka.Client{Addr: kafka.TCP(s.env.KAddr...), Timeout: 10 * time.Second}
	_, err := client.CreateTopics(s.ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}},
	})
	s.Require().NoError(err)
}
