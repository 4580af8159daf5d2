// Package testutil holds shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/keygate/keygate/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// PostgresURL returns TEST_DATABASE_URL when set, otherwise starts a
// throwaway PostgreSQL container that is terminated when the test ends.
func PostgresURL(t testing.TB) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("keygate_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return url
}

// NewPool connects to the test database and registers cleanup.
func NewPool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, PostgresURL(t))
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to ping postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// ResetTables truncates every keygate table.
func ResetTables(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `TRUNCATE access_keys, device_bindings, users`); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB, id string) *model.User {
	t.Helper()
	return &model.User{
		ID:        id,
		Username:  "user-" + id,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestAccessKey creates a key for userID that expires ttl after now.
// A negative ttl yields an already expired key.
func NewTestAccessKey(t testing.TB, userID string, now time.Time, ttl time.Duration) *model.AccessKey {
	t.Helper()
	return &model.AccessKey{
		UserID:    userID,
		KeyValue:  fmt.Sprintf("%048x", now.UnixNano()),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
