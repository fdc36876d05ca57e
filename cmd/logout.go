package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [provider]",
		Short: "Sign out of one provider, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := constant.Providers
			if len(args) == 1 {
				if !constant.IsProvider(args[0]) {
					return fmt.Errorf("unknown provider %q (expected %q or %q)", args[0], constant.Antigravity, constant.Gemini)
				}
				targets = []string{args[0]}
			}

			a, errApp := newApp()
			if errApp != nil {
				return errApp
			}

			for _, provider := range targets {
				if errDelete := a.tokenStore.DeleteProviderTokens(provider); errDelete != nil {
					return fmt.Errorf("logout %s: %w", provider, errDelete)
				}
				fmt.Printf("Signed out of %s\n", provider)
			}
			return nil
		},
	}
}
