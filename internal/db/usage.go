package db

import (
	"context"
	"fmt"
)

// AddUsage adds delta to the call counter of period and returns the new total.
// A negative delta refunds calls.
func (db *DB) AddUsage(ctx context.Context, period string, delta int64) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO usage_trackers (period, count)
		 VALUES ($1, GREATEST($2::bigint, 0))
		 ON CONFLICT (period) DO UPDATE SET
		     count = GREATEST(usage_trackers.count + $2::bigint, 0),
		     updated_at = NOW()
		 RETURNING count`,
		period, delta,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to update usage for %s: %w", period, err)
	}
	return count, nil
}

// GetUsage returns the call counter of period (0 if none recorded)
func (db *DB) GetUsage(ctx context.Context, period string) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT count FROM usage_trackers WHERE period = $1), 0)`,
		period,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get usage for %s: %w", period, err)
	}
	return count, nil
}
