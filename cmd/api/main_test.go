package main

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"password removed", "postgres://keygate:s3cret@db:5432/keygate", "postgres://keygate@db:5432/keygate"},
		{"password only", "redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"no credentials", "redis://cache:6379", "redis://cache:6379"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactURL(tt.in))
		})
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://keygate:s3cret@db:5432/keygate"
	err := errors.New("cannot parse " + dsn + ": password=s3cret rejected")

	got := sanitizeError(err, dsn)

	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "postgres://keygate@db:5432/keygate")
	assert.Empty(t, sanitizeError(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
