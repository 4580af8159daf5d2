package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/counters"
	"github.com/keygate/keygate/internal/model"
)

// DefaultHeartbeatInterval keeps idle counter streams open through proxies.
const DefaultHeartbeatInterval = 15 * time.Second

// CountersSource computes a counters snapshot.
type CountersSource interface {
	Snapshot(ctx context.Context) (*model.KeyStats, error)
}

// CountersFeed hands out live counter subscriptions.
type CountersFeed interface {
	Subscribe() (*counters.Subscription, error)
}

// CountersHandler serves the site counters.
type CountersHandler struct {
	source    CountersSource
	feed      CountersFeed
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewCountersHandler creates a new CountersHandler.
func NewCountersHandler(source CountersSource, feed CountersFeed, logger *slog.Logger) *CountersHandler {
	return &CountersHandler{
		source:    source,
		feed:      feed,
		logger:    logger,
		heartbeat: DefaultHeartbeatInterval,
	}
}

// Get handles GET /api/counters.
func (h *CountersHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.source.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "counters_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Stream handles GET /api/counters/stream as server-sent events.
// Each snapshot is sent as a "counters" event; comments keep the
// connection alive in between.
func (h *CountersHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sub, err := h.feed.Subscribe()
	if err != nil {
		if errors.Is(err, counters.ErrHubClosed) {
			writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down")
			return
		}
		h.logger.ErrorContext(r.Context(), "counters_subscribe_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The hub queues its latest snapshot on Subscribe; compute one only
	// when it has none yet.
	var initial *model.KeyStats
	select {
	case stats, ok := <-sub.C():
		if !ok {
			return
		}
		initial = &stats
	default:
		if initial, err = h.source.Snapshot(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "counters_initial_snapshot_failed", "error", err)
		}
	}
	if initial != nil {
		err = writeEvent(w, rc, initial)
	} else {
		err = rc.Flush()
	}
	if err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case stats, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, rc, &stats); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, stats *model.KeyStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: counters\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
