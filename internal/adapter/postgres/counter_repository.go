package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository implements port.CounterStore on a single rate_counters
// table. The upsert gives atomic increment without explicit locking;
// expiry is a timestamp column filtered on read and swept by DeleteExpired.
type CounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository returns a new repository instance.
func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// Increment atomically adds one to the counter at key and refreshes its
// expiry, returning the new count. An expired row restarts from one.
func (r *CounterRepository) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `INSERT INTO rate_counters (key, count, expires_at)
VALUES ($1, 1, now() + $2)
ON CONFLICT (key) DO UPDATE SET
    count = CASE WHEN rate_counters.expires_at <= now() THEN 1 ELSE rate_counters.count + 1 END,
    expires_at = now() + $2
RETURNING count`, key, ttl).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Get returns the current count at key; absent or expired keys count as
// zero.
func (r *CounterRepository) Get(ctx context.Context, key string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count FROM rate_counters WHERE key = $1 AND expires_at > now()`, key).
		Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteExpired sweeps expired counter rows.
func (r *CounterRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_counters WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
