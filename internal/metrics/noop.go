package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncKeyIssued is a no-op.
func (n *NoopRecorder) IncKeyIssued(outcome string) {}

// IncKeyVerified is a no-op.
func (n *NoopRecorder) IncKeyVerified(result string) {}

// IncVerifyCacheHit is a no-op.
func (n *NoopRecorder) IncVerifyCacheHit() {}

// IncVerifyCacheMiss is a no-op.
func (n *NoopRecorder) IncVerifyCacheMiss() {}

// ObserveStoreDuration is a no-op.
func (n *NoopRecorder) ObserveStoreDuration(op string, duration time.Duration) {}

// AddKeysSwept is a no-op.
func (n *NoopRecorder) AddKeysSwept(count int64) {}

// SetCounterSubscribers is a no-op.
func (n *NoopRecorder) SetCounterSubscribers(count int) {}
