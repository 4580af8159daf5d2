package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/service"
)

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users allowed to request keys",
	}

	cmd.AddCommand(newUserAddCmd(opts))

	return cmd
}

func newUserAddCmd(opts *options) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:     "add <user-id>",
		Short:   "Register a user",
		Long:    "Register a user id so the API accepts key requests for it when KEY_REQUIRE_KNOWN_USER is on.",
		Example: `  keyctl user add 42 --username alice`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			if err := service.ValidateUserID(userID); err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			user := &model.User{
				ID:        userID,
				Username:  firstNonEmpty(username, userID),
				CreatedAt: time.Now().UTC(),
			}
			if err := e.repo.CreateUser(ctx, user); err != nil {
				if errors.Is(err, repository.ErrUserExists) {
					return fmt.Errorf("user %q already exists", userID)
				}
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s added\n", user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Display name (defaults to the user id)")

	return cmd
}
