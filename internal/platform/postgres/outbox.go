package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxOutboxRetries = 5

type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

// LockBatch claims pending rows, rows whose lease expired and failed rows that still have
// retries left.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event
	err := InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
			FROM outbox
			WHERE status = 'pending'
			   OR (status = 'in_progress' AND lease_until < now())
			   OR (status = 'failed' AND retry_count < $2)
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`, batchSize, maxOutboxRetries)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e outbox.Event
			if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
				return err
			}
			e.Status = outbox.StatusInProgress
			e.RelayID = relayID
			events = append(events, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
			relayID, lease.String(), ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1, lease_until=NULL WHERE id=$1`, id, errMsg)
	if err != nil {
		s.log.Error("outbox mark failed", "event_id", id, "err", err)
	}
	return err
}
