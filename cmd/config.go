package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/tools"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change settings",
	}
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigResetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, errStore := config.NewStore("")
			if errStore != nil {
				return fmt.Errorf("open config store: %w", errStore)
			}
			fmt.Println(tools.ConfigMarkdown(store.Load()))
			fmt.Printf("\nFile: %s\n", store.Path())
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting.

Keys: defaultProvider, defaultThinking, includeThoughts, timeout (ms),
verbose, proxyUrl.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, errStore := config.NewStore("")
			if errStore != nil {
				return fmt.Errorf("open config store: %w", errStore)
			}
			updated, errSet := tools.SetConfigKey(store, args[0], args[1])
			if errSet != nil {
				return errSet
			}
			fmt.Println(tools.ConfigMarkdown(updated))
			return nil
		},
	}
}

func newConfigResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, errStore := config.NewStore("")
			if errStore != nil {
				return fmt.Errorf("open config store: %w", errStore)
			}
			reset, errReset := store.Update(func(cfg *config.Config) {
				*cfg = *config.DefaultConfig()
			})
			if errReset != nil {
				return fmt.Errorf("reset config: %w", errReset)
			}
			fmt.Println(tools.ConfigMarkdown(reset))
			return nil
		},
	}
}
