// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Issuance outcomes.
const (
	IssueMinted = "minted"
	IssueReused = "reused"
)

// Verification results.
const (
	VerifyValid     = "valid"
	VerifyInvalid   = "invalid"
	VerifyMalformed = "malformed"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Key protocol metrics
	IncKeyIssued(outcome string)
	IncKeyVerified(result string)
	IncVerifyCacheHit()
	IncVerifyCacheMiss()
	ObserveStoreDuration(op string, duration time.Duration)

	// Background work
	AddKeysSwept(n int64)
	SetCounterSubscribers(n int)
}
