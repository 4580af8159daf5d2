package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = (*InMemoryRecorder)(nil)
	_ Recorder = (*NoopRecorder)(nil)
)

func TestPrometheusRecorder_Counters(t *testing.T) {
	p := NewPrometheus()

	p.IncKeyIssued(IssueMinted)
	p.IncKeyIssued(IssueReused)
	p.IncKeyIssued(IssueReused)
	p.IncKeyVerified(VerifyValid)
	p.IncVerifyCacheHit()
	p.IncVerifyCacheMiss()
	p.IncVerifyCacheMiss()
	p.AddKeysSwept(4)
	p.SetCounterSubscribers(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.keysIssued.WithLabelValues(IssueMinted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.keysIssued.WithLabelValues(IssueReused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.keysVerified.WithLabelValues(VerifyValid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.verifyCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.verifyCache.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.keysSwept))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.counterSubscribers))
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	p := NewPrometheus()
	p.IncKeyIssued(IssueMinted)
	p.ObserveStoreDuration("upsert_access_key", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `keygate_keys_issued_total{outcome="minted"} 1`)
	assert.Contains(t, body, `keygate_store_duration_seconds_count{op="upsert_access_key"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors are registered")
}

func TestPrometheusRecorder_IndependentRegistries(t *testing.T) {
	// Each recorder owns its registry, so tests can build many.
	a := NewPrometheus()
	b := NewPrometheus()
	a.IncKeyVerified(VerifyInvalid)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.keysVerified.WithLabelValues(VerifyInvalid)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.keysVerified.WithLabelValues(VerifyInvalid)))
}

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()

	m.IncKeyIssued(IssueMinted)
	m.IncKeyVerified(VerifyMalformed)
	m.IncKeyVerified(VerifyMalformed)
	m.IncVerifyCacheHit()
	m.ObserveStoreDuration("get_live_access_key", time.Millisecond)
	m.ObserveStoreDuration("get_live_access_key", time.Millisecond)
	m.AddKeysSwept(7)
	m.SetCounterSubscribers(2)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.KeysIssued[IssueMinted])
	assert.Equal(t, uint64(2), snap.KeysVerified[VerifyMalformed])
	assert.Equal(t, uint64(1), snap.VerifyCacheHits)
	assert.Equal(t, uint64(2), snap.StoreCallCount)
	assert.Equal(t, (2 * time.Millisecond).Nanoseconds(), snap.StoreCallTotalNs)
	assert.Equal(t, int64(7), snap.KeysSwept)
	assert.Equal(t, int64(2), snap.CounterSubscribers)

	// Snapshots are copies.
	snap.KeysIssued[IssueMinted] = 100
	assert.Equal(t, uint64(1), m.Snapshot().KeysIssued[IssueMinted])
}
