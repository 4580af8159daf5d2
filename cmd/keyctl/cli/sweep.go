package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/sweeper"
)

func newSweepCmd(opts *options) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete long-expired keys",
		Long:  "Delete keys that expired more than --retention ago. Expired keys are never valid; this only reclaims space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var events sweeper.EventPublisher
			if e.cache != nil {
				events = e.cache
			}
			deleted, err := sweeper.NewWorker(e.repo, events, e.logger, nil, 0, retention).RunOnce(ctx)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired keys\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", sweeper.DefaultRetention, "Keep keys this long after expiry")

	return cmd
}
