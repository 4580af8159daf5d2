package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/repository"
)

var errNoDatabase = errors.New("no database configured: pass --database-url or set DATABASE_URL")

// env holds the connections a command opened. Close releases them.
type env struct {
	repo   *repository.Repository
	cache  *cache.Cache
	logger *slog.Logger
}

func (e *env) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	if e.repo != nil {
		e.repo.Close()
	}
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command, opts *options) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.timeout)
}

// openEnv connects to PostgreSQL and, when configured and withCache is set,
// to Redis.
func openEnv(ctx context.Context, cmd *cobra.Command, opts *options, withCache bool) (*env, error) {
	e := &env{logger: newLogger(cmd.ErrOrStderr(), opts.logLevel)}

	dsn := firstNonEmpty(opts.databaseURL, os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return nil, errNoDatabase
	}
	repo, err := repository.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.repo = repo

	if withCache {
		if url := firstNonEmpty(opts.redisURL, os.Getenv("REDIS_URL")); url != "" {
			c, err := cache.New(ctx, url)
			if err != nil {
				e.Close()
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			e.cache = c
		}
	}

	return e, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
