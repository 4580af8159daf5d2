package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	KeysIssued         map[string]uint64
	KeysVerified       map[string]uint64
	VerifyCacheHits    uint64
	VerifyCacheMisses  uint64
	StoreCallCount     uint64
	StoreCallTotalNs   int64
	KeysSwept          int64
	CounterSubscribers int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu           sync.Mutex
	keysIssued   map[string]uint64
	keysVerified map[string]uint64

	verifyCacheHits    uint64
	verifyCacheMisses  uint64
	storeCallCount     uint64
	storeCallTotalNs   int64
	keysSwept          int64
	counterSubscribers int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		keysIssued:   make(map[string]uint64),
		keysVerified: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	issued := make(map[string]uint64, len(m.keysIssued))
	for k, v := range m.keysIssued {
		issued[k] = v
	}
	verified := make(map[string]uint64, len(m.keysVerified))
	for k, v := range m.keysVerified {
		verified[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		KeysIssued:         issued,
		KeysVerified:       verified,
		VerifyCacheHits:    atomic.LoadUint64(&m.verifyCacheHits),
		VerifyCacheMisses:  atomic.LoadUint64(&m.verifyCacheMisses),
		StoreCallCount:     atomic.LoadUint64(&m.storeCallCount),
		StoreCallTotalNs:   atomic.LoadInt64(&m.storeCallTotalNs),
		KeysSwept:          atomic.LoadInt64(&m.keysSwept),
		CounterSubscribers: atomic.LoadInt64(&m.counterSubscribers),
	}
}

// IncKeyIssued increments the issuance counter for outcome.
func (m *InMemoryRecorder) IncKeyIssued(outcome string) {
	m.mu.Lock()
	m.keysIssued[outcome]++
	m.mu.Unlock()
}

// IncKeyVerified increments the verification counter for result.
func (m *InMemoryRecorder) IncKeyVerified(result string) {
	m.mu.Lock()
	m.keysVerified[result]++
	m.mu.Unlock()
}

// IncVerifyCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncVerifyCacheHit() {
	atomic.AddUint64(&m.verifyCacheHits, 1)
}

// IncVerifyCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncVerifyCacheMiss() {
	atomic.AddUint64(&m.verifyCacheMisses, 1)
}

// ObserveStoreDuration records a store call duration.
func (m *InMemoryRecorder) ObserveStoreDuration(op string, duration time.Duration) {
	atomic.AddUint64(&m.storeCallCount, 1)
	atomic.AddInt64(&m.storeCallTotalNs, duration.Nanoseconds())
}

// AddKeysSwept adds to the swept rows counter.
func (m *InMemoryRecorder) AddKeysSwept(n int64) {
	atomic.AddInt64(&m.keysSwept, n)
}

// SetCounterSubscribers sets the live subscriber gauge.
func (m *InMemoryRecorder) SetCounterSubscribers(n int) {
	atomic.StoreInt64(&m.counterSubscribers, int64(n))
}
