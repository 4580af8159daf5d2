package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/keygate/keygate/internal/model"
)

// Common errors for device binding repository operations.
var (
	ErrBindingNotFound = errors.New("device binding not found")
	// ErrBindingConflict means the user or the fingerprint is already bound.
	ErrBindingConflict = errors.New("device binding conflict")
)

// GetDeviceBinding returns the binding for a user.
func (r *Repository) GetDeviceBinding(ctx context.Context, userID string) (*model.DeviceBinding, error) {
	query := `
		SELECT id, user_id, fingerprint_hash, created_at
		FROM device_bindings
		WHERE user_id = $1
	`

	return r.scanDeviceBinding(r.pool.QueryRow(ctx, query, userID))
}

// GetDeviceBindingByFingerprint returns the binding holding a fingerprint hash.
func (r *Repository) GetDeviceBindingByFingerprint(ctx context.Context, fingerprintHash string) (*model.DeviceBinding, error) {
	query := `
		SELECT id, user_id, fingerprint_hash, created_at
		FROM device_bindings
		WHERE fingerprint_hash = $1
	`

	return r.scanDeviceBinding(r.pool.QueryRow(ctx, query, fingerprintHash))
}

// BindDevice records a user/device pairing.
// Returns ErrBindingConflict if either side is already bound.
func (r *Repository) BindDevice(ctx context.Context, binding *model.DeviceBinding) error {
	query := `
		INSERT INTO device_bindings (id, user_id, fingerprint_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		binding.ID,
		binding.UserID,
		binding.FingerprintHash,
		binding.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err) != "" {
			return ErrBindingConflict
		}
		return fmt.Errorf("failed to bind device: %w", err)
	}

	return nil
}

// DeleteDeviceBinding removes a user's binding so the next device can bind.
func (r *Repository) DeleteDeviceBinding(ctx context.Context, userID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM device_bindings WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete device binding: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrBindingNotFound
	}

	return nil
}

func (r *Repository) scanDeviceBinding(row pgx.Row) (*model.DeviceBinding, error) {
	var binding model.DeviceBinding

	err := row.Scan(
		&binding.ID,
		&binding.UserID,
		&binding.FingerprintHash,
		&binding.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to scan device binding: %w", err)
	}

	return &binding, nil
}
