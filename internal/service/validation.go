package service

import (
	"strings"
	"unicode"

	"github.com/keygate/keygate/internal/auth"
)

// MaxUserIDLength bounds user ids accepted from clients.
const MaxUserIDLength = 64

// ValidateUserID checks an already trimmed user id.
func ValidateUserID(userID string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if len(userID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	for _, r := range userID {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ErrUserIDInvalid
		}
	}
	return nil
}

// ValidateFingerprint checks an optional device fingerprint.
func ValidateFingerprint(fingerprint string) error {
	if len(strings.TrimSpace(fingerprint)) > auth.MaxFingerprintLength {
		return ErrFingerprintTooLong
	}
	return nil
}
