package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxFingerprintLength bounds the device fingerprint accepted from clients.
const MaxFingerprintLength = 256

// HashFingerprint normalizes and hashes a device fingerprint.
// Raw fingerprints are never stored.
func HashFingerprint(fingerprint string) string {
	normalized := strings.ToLower(strings.TrimSpace(fingerprint))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

// QuickHash returns a SHA256 hash of the input for cache keys.
// This is NOT for password storage, only for cache key derivation.
func QuickHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16]) // Use first 16 bytes (32 hex chars)
}
