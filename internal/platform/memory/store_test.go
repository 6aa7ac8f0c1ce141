package memory

import (
	"context"
	"testing"
	"time"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	order "github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveStockRejectsStaleLevels(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.Seed(inventory.Product{ID: 1, Name: "A", StockLevel: 5}, inventory.Product{ID: 2, Name: "B", StockLevel: 5})

	good := inventory.StockChange{ProductID: 1, Kind: inventory.MovementReserve, Quantity: 1,
		Before: inventory.Levels{StockLevel: 5}, After: inventory.Levels{StockLevel: 4, ReservedStock: 1}}
	stale := inventory.StockChange{ProductID: 2, Kind: inventory.MovementReserve, Quantity: 1,
		Before: inventory.Levels{StockLevel: 6}, After: inventory.Levels{StockLevel: 5, ReservedStock: 1}}

	err := s.SaveStock(ctx, []inventory.StockChange{good, stale}, []outbox.Event{{Type: "x"}})
	require.ErrorIs(t, err, inventory.ErrConcurrentUpdate)

	got, err := s.Products(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, inventory.Levels{StockLevel: 5}, got[1].Levels())
	assert.Empty(t, s.Events())

	require.NoError(t, s.SaveStock(ctx, []inventory.StockChange{good}, nil))
	movements, err := s.Movements(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 4, movements[0].StockLevel)
}

func TestSaveStockChainsChangesOnOneProduct(t *testing.T) {
	s := NewStore()
	s.Seed(inventory.Product{ID: 1, Name: "A", StockLevel: 5})

	changes := []inventory.StockChange{
		{ProductID: 1, Kind: inventory.MovementReserve, Quantity: 2, Before: inventory.Levels{StockLevel: 5}, After: inventory.Levels{StockLevel: 3, ReservedStock: 2}},
		{ProductID: 1, Kind: inventory.MovementFinalize, Quantity: 2, Before: inventory.Levels{StockLevel: 3, ReservedStock: 2}, After: inventory.Levels{StockLevel: 3}},
	}
	require.NoError(t, s.SaveStock(context.Background(), changes, nil))
	got, _ := s.Products(context.Background(), []int64{1})
	assert.Equal(t, inventory.Levels{StockLevel: 3}, got[1].Levels())
}

func TestTransitionComparesStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := order.NewOrder("o-1", "c-1", []order.OrderItem{{ProductID: 1, Quantity: 1}}, time.Now())
	require.NoError(t, s.Create(ctx, o, nil, nil))
	assert.Error(t, s.Create(ctx, o, nil, nil))

	cancelled, err := o.Apply(order.EventCancel, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, cancelled, order.StatusReserved, nil, nil))
	assert.ErrorIs(t, s.Transition(ctx, cancelled, order.StatusReserved, nil, nil), order.ErrStaleOrder)
	assert.ErrorIs(t, s.Transition(ctx, order.Order{ID: "nope"}, order.StatusReserved, nil, nil), order.ErrOrderNotFound)

	got, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	got.Items[0].Quantity = 99
	again, _ := s.Get(ctx, "o-1")
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestOutboxLeaseAndRetry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.appendEventsLocked([]outbox.Event{{Type: "a"}, {Type: "b"}, {Type: "c"}})

	batch, err := s.LockBatch(ctx, "r1", 2, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, outbox.StatusInProgress, batch[0].Status)

	batch, err = s.LockBatch(ctx, "r2", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].Type)

	require.NoError(t, s.MarkSent(ctx, []int64{1}))
	require.NoError(t, s.MarkFailed(ctx, 3, "boom"))

	now = now.Add(2 * time.Second)
	batch, err = s.LockBatch(ctx, "r2", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(2), batch[0].ID)
	assert.Equal(t, int64(3), batch[1].ID)
	assert.Equal(t, 1, batch[1].RetryCount)
}
