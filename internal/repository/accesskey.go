package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/keygate/keygate/internal/model"
)

// Common errors for access key repository operations.
var (
	ErrAccessKeyNotFound = errors.New("access key not found")
	// ErrLiveKeyExists means the upsert found a row that is still live,
	// typically written by a concurrent issuance for the same user.
	ErrLiveKeyExists = errors.New("live access key already exists")
	// ErrKeyValueCollision means the generated key value is already stored.
	ErrKeyValueCollision = errors.New("access key value collision")
)

const accessKeyColumns = `user_id, key_value, expires_at, created_at`

// GetLiveAccessKey returns the user's key if it is still valid at now.
func (r *Repository) GetLiveAccessKey(ctx context.Context, userID string, now time.Time) (*model.AccessKey, error) {
	query := `
		SELECT ` + accessKeyColumns + `
		FROM access_keys
		WHERE user_id = $1 AND expires_at > $2
	`

	return r.scanAccessKey(r.pool.QueryRow(ctx, query, userID, now))
}

// GetAccessKeyByValue returns the key row matching keyValue if it is valid at now.
func (r *Repository) GetAccessKeyByValue(ctx context.Context, keyValue string, now time.Time) (*model.AccessKey, error) {
	query := `
		SELECT ` + accessKeyColumns + `
		FROM access_keys
		WHERE key_value = $1 AND expires_at > $2
	`

	return r.scanAccessKey(r.pool.QueryRow(ctx, query, keyValue, now))
}

// UpsertAccessKey stores key as the user's only row in a single statement.
// An existing row is overwritten only if it has expired at now; otherwise
// nothing is written and ErrLiveKeyExists is returned.
func (r *Repository) UpsertAccessKey(ctx context.Context, key *model.AccessKey, now time.Time) (*model.AccessKey, error) {
	query := `
		INSERT INTO access_keys (user_id, key_value, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET key_value = EXCLUDED.key_value,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
		WHERE access_keys.expires_at <= $4
		RETURNING ` + accessKeyColumns

	stored, err := r.scanAccessKey(r.pool.QueryRow(ctx, query,
		key.UserID,
		key.KeyValue,
		key.ExpiresAt,
		now,
	))
	if err != nil {
		switch {
		case errors.Is(err, ErrAccessKeyNotFound):
			return nil, ErrLiveKeyExists
		case uniqueViolation(err) != "":
			return nil, ErrKeyValueCollision
		}
		return nil, fmt.Errorf("failed to upsert access key: %w", err)
	}

	return stored, nil
}

// GetAccessKeysByUserIDs returns stored keys for the given users, live or not.
func (r *Repository) GetAccessKeysByUserIDs(ctx context.Context, userIDs []string) ([]*model.AccessKey, error) {
	query := `
		SELECT ` + accessKeyColumns + `
		FROM access_keys
		WHERE user_id = ANY($1)
		ORDER BY user_id
	`

	rows, err := r.pool.Query(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get access keys by user IDs: %w", err)
	}
	defer rows.Close()

	var keys []*model.AccessKey
	for rows.Next() {
		var key model.AccessKey
		if err := rows.Scan(&key.UserID, &key.KeyValue, &key.ExpiresAt, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access key: %w", err)
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access keys: %w", err)
	}

	return keys, nil
}

// DeleteExpiredAccessKeys removes rows that expired before the cutoff.
func (r *Repository) DeleteExpiredAccessKeys(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM access_keys WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access keys: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanAccessKey scans a single row into an AccessKey model.
func (r *Repository) scanAccessKey(row pgx.Row) (*model.AccessKey, error) {
	var key model.AccessKey

	err := row.Scan(
		&key.UserID,
		&key.KeyValue,
		&key.ExpiresAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccessKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan access key: %w", err)
	}

	return &key, nil
}
