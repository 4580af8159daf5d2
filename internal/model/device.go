package model

import "time"

// Reasons a live key is refused because of device binding.
const (
	ReasonDeviceMismatch = "device_mismatch"
	ReasonDeviceInUse    = "device_in_use"
)

// DeviceBinding pairs a user with the one device allowed to use their keys.
// Both sides are unique, so the pairing is bijective.
type DeviceBinding struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FingerprintHash string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Matches reports whether the binding belongs to the given fingerprint hash.
func (b *DeviceBinding) Matches(fingerprintHash string) bool {
	return b.FingerprintHash == fingerprintHash
}
