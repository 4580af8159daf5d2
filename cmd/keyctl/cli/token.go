package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
)

// minAdminTokenLength keeps operator tokens out of guessing range.
const minAdminTokenLength = 16

type hashTokenOutput struct {
	Token string `json:"token,omitempty"`
	Hash  string `json:"hash"`
}

func newHashTokenCmd(opts *options) *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash an admin API token",
		Long: `Print the argon2id hash to put in ADMIN_TOKEN_HASH. The token is read from
the argument, or from the first line of stdin when omitted. With --generate a
random token is created and printed once alongside its hash.`,
		Example: `  keyctl hash-token --generate
  echo -n "$TOKEN" | keyctl hash-token`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out hashTokenOutput

			switch {
			case generate && len(args) > 0:
				return errors.New("pass a token or --generate, not both")
			case generate:
				token, err := auth.GenerateKeyValue()
				if err != nil {
					return err
				}
				out.Token = token
			case len(args) == 1:
				out.Token = args[0]
			default:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no token given: pass it as an argument or on stdin")
				}
				out.Token = line
			}

			token := strings.TrimSpace(out.Token)
			if len(token) < minAdminTokenLength {
				return fmt.Errorf("token must be at least %d characters", minAdminTokenLength)
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			out.Hash = hash
			if !generate {
				out.Token = ""
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if generate {
				fmt.Fprintf(cmd.OutOrStdout(), "Token: %s\n", token)
				fmt.Fprintln(cmd.OutOrStdout(), "Save this token now - it cannot be retrieved again.")
			}
			// Single quotes keep .env loaders from expanding the $ fields.
			fmt.Fprintf(cmd.OutOrStdout(), "ADMIN_TOKEN_HASH='%s'\n", hash)
			return nil
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random token")

	return cmd
}
