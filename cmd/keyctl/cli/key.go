package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// errKeyNotValid gives a failed verification a non-zero exit status.
var errKeyNotValid = errors.New("key is not valid")

// keyService builds the same service the API runs, over the command's
// connections.
func keyService(e *env, ttl time.Duration, requireKnownUser bool) *service.KeyService {
	var (
		verifyCache service.VerifyCache
		events      service.EventPublisher
	)
	if e.cache != nil {
		verifyCache = e.cache
		events = e.cache
	}
	return service.NewKeyService(e.repo, verifyCache, events, e.logger, nil, service.KeyServiceConfig{
		KeyTTL:           ttl,
		RequireKnownUser: requireKnownUser,
	})
}

type issueOutput struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

func newIssueCmd(opts *options) *cobra.Command {
	var (
		ttl           time.Duration
		skipUserCheck bool
	)

	cmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue an access key for a user",
		Long: `Return the user's live access key, minting one if there is none.
Behaves exactly like POST /api/generate-key.`,
		Example: `  keyctl issue 42
  keyctl issue 42 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := keyService(e, ttl, !skipUserCheck).Issue(ctx, args[0])
			if err != nil {
				return err
			}

			out := issueOutput{
				UserID:    result.Key.UserID,
				Key:       result.Key.KeyValue,
				ExpiresAt: result.Key.ExpiresAt,
				Reused:    result.Reused,
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Key:      %s\n", out.Key)
			fmt.Fprintf(w, "User:     %s\n", out.UserID)
			fmt.Fprintf(w, "Expires:  %s\n", out.ExpiresAt.Format(time.RFC3339))
			if out.Reused {
				fmt.Fprintln(w, "(existing live key)")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", model.DefaultKeyTTL, "Validity window of a newly minted key")
	cmd.Flags().BoolVar(&skipUserCheck, "skip-user-check", false, "Issue even if the user id is not registered")

	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	var hwid string

	cmd := &cobra.Command{
		Use:   "verify <key>",
		Short: "Verify an access key",
		Long: `Check whether a key is live. With --hwid the device binding is checked and,
on first use, recorded. Exits non-zero when the key is not valid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := keyService(e, 0, false).Verify(ctx, args[0], hwid)
			if err != nil {
				return err
			}

			resp := model.VerifyKeyResponse{Valid: result.Valid, UserID: model.UserRef(result.UserID), Reason: result.Reason}
			if opts.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
					return err
				}
			} else if resp.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "valid (user %s)\n", resp.UserID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid", resp.Reason)
			}

			if !resp.Valid {
				return errKeyNotValid
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hwid, "hwid", "", "Device fingerprint to check against the user's binding")

	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <user-id>...",
		Short: "Show stored keys of users",
		Long:  "Show the stored key of each user, live or expired. Key values are shown as prefixes only.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			statuses, err := keyService(e, 0, false).Status(ctx, args)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), statuses)
			}
			return printStatuses(cmd, statuses)
		},
	}

	return cmd
}

func printStatuses(cmd *cobra.Command, statuses []model.AccessKeyStatus) error {
	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no keys stored")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tKEY\tLIVE\tEXPIRES")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.UserID, s.KeyPrefix, s.Live, s.ExpiresAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
