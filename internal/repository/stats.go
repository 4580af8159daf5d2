package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// GetKeyStats computes the counters read model at now.
func (r *Repository) GetKeyStats(ctx context.Context, now time.Time) (*model.KeyStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM access_keys),
			(SELECT COUNT(*) FROM access_keys WHERE expires_at > $1),
			(SELECT COUNT(*) FROM device_bindings)
	`

	stats := model.KeyStats{ComputedAt: now}
	err := r.pool.QueryRow(ctx, query, now).Scan(
		&stats.KeysIssued,
		&stats.LiveKeys,
		&stats.BoundDevices,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get key stats: %w", err)
	}

	return &stats, nil
}
