// Package auth provides key material generation and secret hashing.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Access keys are 24 random bytes, hex encoded.
const (
	KeyBytes  = 24
	KeyLength = KeyBytes * 2
)

var (
	// ErrInvalidKeyFormat indicates the key is not a well-formed access key.
	ErrInvalidKeyFormat = errors.New("invalid access key format")
	// keyFormatRegex validates the key format.
	keyFormatRegex = regexp.MustCompile(`^[a-f0-9]{48}$`)
)

// randRead is swapped in tests to simulate entropy failures.
var randRead = rand.Read

// GenerateKeyValue returns a fresh, unpredictable access key value.
func GenerateKeyValue() (string, error) {
	buf := make([]byte, KeyBytes)
	if _, err := randRead(buf); err != nil {
		return "", fmt.Errorf("generate key value: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
