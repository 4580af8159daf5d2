// Package sweeper purges expired access keys in the background.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

// DefaultRetention keeps expired rows around for a day before purging.
const DefaultRetention = 24 * time.Hour

// Store deletes expired key rows.
// *repository.Repository implements it.
type Store interface {
	DeleteExpiredAccessKeys(ctx context.Context, before time.Time) (int64, error)
}

// EventPublisher broadcasts key state changes.
type EventPublisher interface {
	PublishKeyEvent(ctx context.Context, event model.KeyEvent) error
}

// Worker periodically deletes keys that expired more than retention ago.
// Expired rows are never valid, so purging only reclaims space.
type Worker struct {
	store     Store
	events    EventPublisher
	logger    *slog.Logger
	metrics   metrics.Recorder
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a sweeper. events may be nil.
func NewWorker(store Store, events EventPublisher, logger *slog.Logger, recorder metrics.Recorder, interval, retention time.Duration) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if retention < 0 {
		retention = DefaultRetention
	}
	return &Worker{
		store:     store,
		events:    events,
		logger:    logger.With("component", "sweeper"),
		metrics:   recorder,
		interval:  interval,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce deletes rows that expired before now minus retention.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	now := w.now()
	cutoff := now.Add(-w.retention)

	deleted, err := w.store.DeleteExpiredAccessKeys(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired keys: %w", err)
	}

	w.metrics.AddKeysSwept(deleted)
	if deleted > 0 {
		w.logger.Info("expired access keys swept", "deleted", deleted, "cutoff", cutoff)
		if w.events != nil {
			event := model.KeyEvent{Type: model.EventKeysSwept, OccurredAt: now}
			if err := w.events.PublishKeyEvent(ctx, event); err != nil {
				w.logger.Warn("failed to publish sweep event", "error", err)
			}
		}
	}
	return deleted, nil
}

// Run sweeps every interval until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		return errors.New("sweeper interval must be positive")
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("sweeper already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	w.logger.Info("sweeper started", "interval", w.interval, "retention", w.retention)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopping")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Shutdown stops the worker, letting an in-flight sweep finish.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("sweeper shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("sweeper shutdown timed out")
		return ctx.Err()
	}
}
