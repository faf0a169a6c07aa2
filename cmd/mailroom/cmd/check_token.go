package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mailroom/mailroom/internal/mailbox"
)

var checkToken string

var errTokenInvalid = errors.New("token validation failed")

var checkTokenCmd = &cobra.Command{
	Use:   "check-token",
	Short: "Check that an access token can read the mailbox",
	Long: `Check that a Gmail access token works by reading the profile, listing one
message and fetching it. An empty mailbox passes when the profile is readable.

The token is taken from --token or, when omitted, from MAILROOM_ACCESS_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := checkToken
		if token == "" {
			token = os.Getenv("MAILROOM_ACCESS_TOKEN")
		}
		if token == "" {
			return errors.New("no token: pass --token or set MAILROOM_ACCESS_TOKEN")
		}

		svc := mailbox.New(newDialer(cfg, logger), mailboxOptions(cfg, logger)...)
		svc.SetToken(token)

		out := cmd.OutOrStdout()
		if !svc.ValidateToken(cmd.Context()) {
			fmt.Fprintf(out, "%s token cannot read the mailbox (see the log for details)\n", color.New(color.FgRed, color.Bold).Sprint("FAIL"))
			return errTokenInvalid
		}
		fmt.Fprintf(out, "%s token can read the mailbox\n", color.New(color.FgGreen, color.Bold).Sprint("PASS"))
		return nil
	},
}

func init() {
	checkTokenCmd.Flags().StringVar(&checkToken, "token", "", "OAuth access token to check")
	rootCmd.AddCommand(checkTokenCmd)
}
