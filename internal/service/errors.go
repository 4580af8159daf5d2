package service

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks caller errors. Handlers answer them with 400.
var ErrInvalidRequest = errors.New("invalid request")

// Request errors. Each wraps ErrInvalidRequest.
var (
	ErrMissingUserID      = fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	ErrUserIDTooLong      = fmt.Errorf("%w: user id exceeds maximum length", ErrInvalidRequest)
	ErrUserIDInvalid      = fmt.Errorf("%w: user id contains invalid characters", ErrInvalidRequest)
	ErrUnknownUser        = fmt.Errorf("%w: unknown user", ErrInvalidRequest)
	ErrMissingKey         = fmt.Errorf("%w: key is required", ErrInvalidRequest)
	ErrFingerprintTooLong = fmt.Errorf("%w: device fingerprint exceeds maximum length", ErrInvalidRequest)
)

// Other service errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrKeyGenerationFailed = errors.New("could not generate a unique access key")
)

// StoreError reports a failed key store operation. The wrapped error holds
// the driver detail and must not be shown to callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("key store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the key store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
