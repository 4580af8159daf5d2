// Package counters serves the site's live key counters. Counts are read
// from the key store on demand and pushed to subscribers when keys change.
package counters

import (
	"context"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// StatsStore computes counters from persisted state.
// *repository.Repository implements it.
type StatsStore interface {
	GetKeyStats(ctx context.Context, now time.Time) (*model.KeyStats, error)
}

// Service computes counter snapshots.
type Service struct {
	store StatsStore
	now   func() time.Time
}

// NewService creates a counters service. now may be nil.
func NewService(store StatsStore, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, now: now}
}

// Snapshot recomputes the counters.
func (s *Service) Snapshot(ctx context.Context) (*model.KeyStats, error) {
	stats, err := s.store.GetKeyStats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("compute key stats: %w", err)
	}
	return stats, nil
}
