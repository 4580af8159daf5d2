// Package cli implements the keyctl command tree.
package cli

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	databaseURL string
	redisURL    string
	timeout     time.Duration
	jsonOutput  bool
	logLevel    string
}

// Execute creates the root command tree and runs it.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd builds the keyctl command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Operate a keygate deployment",
		Long: `keyctl manages the keygate key store directly: apply the schema, register
users, issue and verify access keys, inspect key state, purge expired keys
and hash the admin API token.

Connection settings fall back to DATABASE_URL and REDIS_URL, read from the
environment or a .env file in the working directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env file is fine.
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", "", "Redis connection string for cache and events (default $REDIS_URL, optional)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall command timeout")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	cmd.AddCommand(newSchemaCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newIssueCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newHashTokenCmd(opts))

	return cmd
}
