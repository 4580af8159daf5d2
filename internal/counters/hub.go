package counters

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

// DefaultRefreshInterval re-broadcasts counters even without key events,
// so live counts drop as keys expire.
const DefaultRefreshInterval = 30 * time.Second

// ErrHubClosed is returned by Subscribe after Shutdown.
var ErrHubClosed = errors.New("counters hub closed")

// EventSubscriber opens a subscription to the key event bus.
// *cache.Cache implements it.
type EventSubscriber interface {
	SubscribeKeyEvents(ctx context.Context, logger *slog.Logger) (*cache.EventSubscription, error)
}

// Hub fans counter snapshots out to subscribers.
type Hub struct {
	counters        *Service
	events          EventSubscriber
	logger          *slog.Logger
	metrics         metrics.Recorder
	refreshInterval time.Duration

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	last   *model.KeyStats
	closed bool

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub creates a hub. events may be nil, in which case the hub only
// refreshes on its interval.
func NewHub(counters *Service, events EventSubscriber, logger *slog.Logger, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Hub{
		counters:        counters,
		events:          events,
		logger:          logger.With("component", "counters.hub"),
		metrics:         recorder,
		refreshInterval: DefaultRefreshInterval,
		subs:            make(map[*Subscription]struct{}),
	}
}

// SetRefreshInterval overrides DefaultRefreshInterval. Call before Run.
func (h *Hub) SetRefreshInterval(d time.Duration) {
	h.refreshInterval = d
}

// Subscription receives counter snapshots until closed.
type Subscription struct {
	hub  *Hub
	ch   chan model.KeyStats
	once sync.Once
}

// C returns the snapshot channel. It holds at most one pending snapshot;
// a slow reader only ever sees the latest one. The channel is closed when
// the subscription or the hub is closed.
func (s *Subscription) C() <-chan model.KeyStats {
	return s.ch
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a new subscriber. The latest known snapshot, if any,
// is delivered immediately.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{hub: h, ch: make(chan model.KeyStats, 1)}
	h.subs[sub] = struct{}{}
	if h.last != nil {
		sub.ch <- *h.last
	}
	h.metrics.SetCounterSubscribers(len(h.subs))
	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(sub)
	h.metrics.SetCounterSubscribers(len(h.subs))
}

// detachLocked must be called with h.mu held.
func (h *Hub) detachLocked(sub *Subscription) {
	sub.once.Do(func() {
		delete(h.subs, sub)
		close(sub.ch)
	})
}

// Refresh recomputes the counters and broadcasts them.
func (h *Hub) Refresh(ctx context.Context) (*model.KeyStats, error) {
	stats, err := h.counters.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	h.broadcast(stats)
	return stats, nil
}

func (h *Hub) broadcast(stats *model.KeyStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = stats
	for sub := range h.subs {
		select {
		case sub.ch <- *stats:
		default:
			// Replace the stale pending snapshot.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- *stats:
			default:
			}
		}
	}
}

// Run refreshes on key events and on the refresh interval.
// Blocks until ctx is cancelled or Shutdown is called.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("hub already started")
	}
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.started = true
	h.done = make(chan struct{})
	ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	defer close(h.done)

	var events <-chan model.KeyEvent
	if h.events != nil {
		sub, err := h.events.SubscribeKeyEvents(ctx, h.logger)
		if err != nil {
			// Counters still refresh on the interval.
			h.logger.Warn("key event subscription failed", "error", err)
		} else {
			defer sub.Close()
			events = sub.Events()
		}
	}

	ticker := time.NewTicker(h.refreshInterval)
	defer ticker.Stop()

	h.logger.Info("counters hub started")
	h.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("counters hub stopping")
			return nil
		case event, ok := <-events:
			if !ok {
				h.logger.Warn("key event subscription ended")
				events = nil
				continue
			}
			h.logger.Debug("key event received", "type", event.Type)
			h.refresh(ctx)
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *Hub) refresh(ctx context.Context) {
	if _, err := h.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("failed to refresh counters", "error", err)
	}
}

// Shutdown stops Run and closes every subscription.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	cancel := h.cancel
	done := h.done
	for sub := range h.subs {
		h.detachLocked(sub)
	}
	h.metrics.SetCounterSubscribers(0)
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
			h.logger.Info("counters hub shutdown complete")
		case <-ctx.Done():
			h.logger.Warn("counters hub shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}
