package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/repository"
)

func newSchemaCmd(opts *options) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Apply the database schema",
		Long:  "Create the keygate tables and indexes if they do not exist. Safe to run repeatedly.",
		Example: `  keyctl schema
  keyctl schema --print > schema.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), repository.Schema())
				return err
			}

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			e, err := openEnv(ctx, cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.repo.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")

	return cmd
}
