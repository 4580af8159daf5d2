package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// fakeStore mirrors the repository's semantics in memory.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]bool
	keys     map[string]*model.AccessKey // by user id
	bindings map[string]*model.DeviceBinding

	// failWith makes every call return this error.
	failWith error
	// beforeUpsert runs inside UpsertAccessKey before the write.
	beforeUpsert func()
	// beforeBind runs inside BindDevice before the write.
	beforeBind func()
	upserts    int
	binds      int
}

func newFakeStore(users ...string) *fakeStore {
	s := &fakeStore{
		users:    make(map[string]bool),
		keys:     make(map[string]*model.AccessKey),
		bindings: make(map[string]*model.DeviceBinding),
	}
	for _, u := range users {
		s.users[u] = true
	}
	return s
}

func (s *fakeStore) UserExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	return s.users[id], nil
}

func (s *fakeStore) GetLiveAccessKey(_ context.Context, userID string, now time.Time) (*model.AccessKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	k, ok := s.keys[userID]
	if !ok || !now.Before(k.ExpiresAt) {
		return nil, repository.ErrAccessKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *fakeStore) GetAccessKeyByValue(_ context.Context, keyValue string, now time.Time) (*model.AccessKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, k := range s.keys {
		if k.KeyValue == keyValue && now.Before(k.ExpiresAt) {
			cp := *k
			return &cp, nil
		}
	}
	return nil, repository.ErrAccessKeyNotFound
}

func (s *fakeStore) UpsertAccessKey(_ context.Context, key *model.AccessKey, now time.Time) (*model.AccessKey, error) {
	if s.beforeUpsert != nil {
		s.beforeUpsert()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failWith != nil {
		return nil, s.failWith
	}
	for uid, k := range s.keys {
		if uid != key.UserID && k.KeyValue == key.KeyValue {
			return nil, repository.ErrKeyValueCollision
		}
	}
	if existing, ok := s.keys[key.UserID]; ok && now.Before(existing.ExpiresAt) {
		return nil, repository.ErrLiveKeyExists
	}
	cp := *key
	s.keys[key.UserID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetAccessKeysByUserIDs(_ context.Context, userIDs []string) ([]*model.AccessKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*model.AccessKey
	for _, id := range userIDs {
		if k, ok := s.keys[id]; ok {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) GetDeviceBinding(_ context.Context, userID string) (*model.DeviceBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	b, ok := s.bindings[userID]
	if !ok {
		return nil, repository.ErrBindingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) GetDeviceBindingByFingerprint(_ context.Context, fingerprintHash string) (*model.DeviceBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, b := range s.bindings {
		if b.FingerprintHash == fingerprintHash {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBindingNotFound
}

func (s *fakeStore) BindDevice(_ context.Context, binding *model.DeviceBinding) error {
	if s.beforeBind != nil {
		s.beforeBind()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds++
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.bindings[binding.UserID]; ok {
		return repository.ErrBindingConflict
	}
	for _, b := range s.bindings {
		if b.FingerprintHash == binding.FingerprintHash {
			return repository.ErrBindingConflict
		}
	}
	cp := *binding
	s.bindings[binding.UserID] = &cp
	return nil
}

func (s *fakeStore) DeleteDeviceBinding(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.bindings[userID]; !ok {
		return repository.ErrBindingNotFound
	}
	delete(s.bindings, userID)
	return nil
}

// fakeCache is an in-memory VerifyCache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*model.AccessKey
	getErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*model.AccessKey)}
}

func (c *fakeCache) GetVerifiedKey(_ context.Context, keyValue string) (*model.AccessKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	k, ok := c.entries[keyValue]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (c *fakeCache) SetVerifiedKey(_ context.Context, key *model.AccessKey, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if !key.IsLive(now) {
		return nil
	}
	cp := *key
	c.entries[key.KeyValue] = &cp
	return nil
}

// fakeEvents records published events.
type fakeEvents struct {
	mu     sync.Mutex
	events []model.KeyEvent
	err    error
}

func (e *fakeEvents) PublishKeyEvent(_ context.Context, event model.KeyEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// sequenceKeys returns deterministic, well-formed key values.
func sequenceKeys(values ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i < len(values) {
			v := values[i]
			i++
			return v, nil
		}
		i++
		return fmt.Sprintf("%048x", i), nil
	}
}

var errStoreDown = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
