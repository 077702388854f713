package repository

import (
	"context"
	"fmt"
)

// NextSequence atomically increments and returns the counter for key. The
// increment and the read are one statement, so concurrent callers can never
// observe the same value.
func (r *Repository) NextSequence(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO counters (key, seq)
		VALUES ($1, 1)
		ON CONFLICT (key)
		DO UPDATE SET seq = counters.seq + 1
		RETURNING seq
	`, key).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence %q: %w", key, err)
	}
	return seq, nil
}
