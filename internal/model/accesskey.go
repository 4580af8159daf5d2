// Package model defines domain entities for the application.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// DefaultKeyTTL is the validity window of a freshly issued access key.
const DefaultKeyTTL = 6 * time.Hour

// AccessKey is the single credential a user currently holds.
// There is at most one row per user; re-issuance overwrites it.
type AccessKey struct {
	UserID    string    `json:"user_id"`
	KeyValue  string    `json:"-"` // Never serialize
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsLive reports whether the key is still valid at now.
// Validity is strictly before the expiry instant.
func (k *AccessKey) IsLive(now time.Time) bool {
	return now.Before(k.ExpiresAt)
}

// Remaining returns how long the key stays valid after now.
// Returns zero once the key has expired.
func (k *AccessKey) Remaining(now time.Time) time.Duration {
	if !k.IsLive(now) {
		return 0
	}
	return k.ExpiresAt.Sub(now)
}

// KeyPrefix returns a short, log-safe prefix of the key value.
func (k *AccessKey) KeyPrefix() string {
	return RedactKey(k.KeyValue)
}

// RedactKey keeps the first 8 characters of a key for correlation in logs.
func RedactKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:8] + "..."
}

// AccessKeyStatus is the operator view of a stored key (without the secret).
type AccessKeyStatus struct {
	UserID    string    `json:"user_id"`
	KeyPrefix string    `json:"key_prefix"`
	Live      bool      `json:"live"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ToStatus converts an AccessKey to AccessKeyStatus evaluated at now.
func (k *AccessKey) ToStatus(now time.Time) AccessKeyStatus {
	return AccessKeyStatus{
		UserID:    k.UserID,
		KeyPrefix: k.KeyPrefix(),
		Live:      k.IsLive(now),
		ExpiresAt: k.ExpiresAt,
		CreatedAt: k.CreatedAt,
	}
}

// GenerateKeyRequest is the body of POST /api/generate-key.
// The user id is accepted under several field names used by existing clients.
type GenerateKeyRequest struct {
	UserID      UserRef `json:"user_id"`
	UserIDCamel UserRef `json:"userId"`
	UID         UserRef `json:"uid"`
}

// UserRef is a user id that may arrive as a JSON string or number.
type UserRef string

// UnmarshalJSON accepts "42", 42 and null.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*u = UserRef(n.String())
	return nil
}

// numericUserID matches ids that round-trip through a JSON number without
// losing precision in JavaScript clients.
var numericUserID = regexp.MustCompile(`^(0|[1-9][0-9]{0,14})$`)

// MarshalJSON writes integer ids as JSON numbers, matching clients that
// stored them in an INT column. Anything else is written as a string.
func (u UserRef) MarshalJSON() ([]byte, error) {
	if numericUserID.MatchString(string(u)) {
		return []byte(u), nil
	}
	return json.Marshal(string(u))
}

// ResolveUserID returns the first non-empty user id field.
func (r *GenerateKeyRequest) ResolveUserID() string {
	for _, v := range []string{string(r.UserID), string(r.UserIDCamel), string(r.UID)} {
		if v != "" {
			return v
		}
	}
	return ""
}

// GenerateKeyResponse is returned by POST /api/generate-key.
type GenerateKeyResponse struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyKeyRequest is the body of POST /api/verify-key.
type VerifyKeyRequest struct {
	Key  string `json:"key"`
	HWID string `json:"hwid,omitempty"`
}

// VerifyKeyResponse is returned by POST /api/verify-key.
// UserID is only present when the key is valid.
type VerifyKeyResponse struct {
	Valid  bool    `json:"valid"`
	UserID UserRef `json:"user_id,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Error  string  `json:"error,omitempty"`
}
