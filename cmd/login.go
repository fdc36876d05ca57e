package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/router-for-me/GroundedSearchMCP/internal/auth"
	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func newLoginCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login <provider>",
		Short: "Sign in to a search provider",
		Long: fmt.Sprintf(`Sign in to a search provider (%q or %q).

Opens your browser for the Google sign-in flow and waits for the local
callback. With --no-browser the authorization URL is printed and the
authorization code shown by Google is read from the terminal instead,
which works over SSH and in containers.`,
			constant.Antigravity, constant.Gemini),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			if !constant.IsProvider(provider) {
				return fmt.Errorf("unknown provider %q (expected %q or %q)", provider, constant.Antigravity, constant.Gemini)
			}

			a, errApp := newApp()
			if errApp != nil {
				return errApp
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var token *auth.ProviderToken
			var errLogin error
			if noBrowser {
				token, errLogin = a.flow.LoginManual(ctx, provider, os.Stdin, os.Stdout)
			} else {
				token, errLogin = a.flow.LoginLocal(ctx, provider, false)
			}
			if errLogin != nil {
				return fmt.Errorf("login: %w", errLogin)
			}

			if token.Email != "" {
				fmt.Printf("Signed in to %s as %s\n", provider, token.Email)
			} else {
				fmt.Printf("Signed in to %s\n", provider)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL and read the code from the terminal instead of opening a browser")
	return cmd
}
