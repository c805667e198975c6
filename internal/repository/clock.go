package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerClock reads the trusted time from the database server. Inside
// Transactor.RunAtomic it queries through the open transaction, so it never
// needs a second pool connection while the transaction holds one.
type ServerClock struct {
	pool *pgxpool.Pool
}

// NewServerClock creates a new ServerClock instance.
func NewServerClock(pool *pgxpool.Pool) *ServerClock {
	return &ServerClock{pool: pool}
}

// Now returns the database server's current time. clock_timestamp() is used
// rather than now() so a retried transaction sees the time of the retry.
func (c *ServerClock) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := executor(ctx, c.pool).QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now, nil
}
