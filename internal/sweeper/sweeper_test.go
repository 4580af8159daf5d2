package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (s *fakeStore) DeleteExpiredAccessKeys(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, before)
	if s.err != nil {
		return 0, s.err
	}
	return s.deleted, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.KeyEvent
}

func (e *fakeEvents) PublishKeyEvent(_ context.Context, event model.KeyEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_UsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{deleted: 3}
	events := &fakeEvents{}
	recorder := metrics.NewInMemory()

	w := NewWorker(store, events, discardLogger(), recorder, time.Minute, 2*time.Hour)
	w.now = func() time.Time { return now }

	deleted, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	require.Len(t, store.cutoffs, 1)
	assert.True(t, now.Add(-2*time.Hour).Equal(store.cutoffs[0]))
	assert.Equal(t, int64(3), recorder.Snapshot().KeysSwept)
	require.Len(t, events.events, 1)
	assert.Equal(t, model.EventKeysSwept, events.events[0].Type)
}

func TestRunOnce_NothingDeletedPublishesNothing(t *testing.T) {
	events := &fakeEvents{}
	w := NewWorker(&fakeStore{}, events, discardLogger(), nil, time.Minute, 0)

	deleted, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Empty(t, events.events)
}

func TestRunOnce_StoreError(t *testing.T) {
	storeErr := errors.New("db down")
	w := NewWorker(&fakeStore{err: storeErr}, nil, discardLogger(), nil, time.Minute, time.Hour)

	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, storeErr)
}

func TestNewWorker_NegativeRetentionUsesDefault(t *testing.T) {
	w := NewWorker(&fakeStore{}, nil, discardLogger(), nil, time.Minute, -time.Second)
	assert.Equal(t, DefaultRetention, w.retention)
}

func TestRun_RequiresInterval(t *testing.T) {
	w := NewWorker(&fakeStore{}, nil, discardLogger(), nil, 0, time.Hour)
	assert.Error(t, w.Run(context.Background()))
}

func TestRun_SweepsUntilShutdown(t *testing.T) {
	store := &fakeStore{deleted: 1}
	w := NewWorker(store, nil, discardLogger(), nil, 10*time.Millisecond, time.Hour)

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool { return store.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.NoError(t, <-runErr)
}

func TestShutdown_NotStarted(t *testing.T) {
	w := NewWorker(&fakeStore{}, nil, discardLogger(), nil, time.Minute, time.Hour)
	assert.NoError(t, w.Shutdown(context.Background()))
}
