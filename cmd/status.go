package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/router-for-me/GroundedSearchMCP/internal/tools"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication state and usage counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, errApp := newApp()
			if errApp != nil {
				return errApp
			}

			md, errStatus := tools.AuthStatusMarkdown(a.tokenStore, a.usage)
			if errStatus != nil {
				return errStatus
			}
			fmt.Println(md)
			return nil
		},
	}
}
