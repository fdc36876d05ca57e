package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/logging"
	"github.com/router-for-me/GroundedSearchMCP/internal/tools"
)

func newServeCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server",
		Long: `Run the grounded search MCP server on stdio.

Logs go to stderr so stdout stays clean for JSON-RPC; use --log-file to
write them to a rotating file instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logFile != "" {
				if err := logging.ConfigureLogOutput(logFile); err != nil {
					return fmt.Errorf("configure log file: %w", err)
				}
			}

			a, errApp := newApp()
			if errApp != nil {
				return errApp
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher, errWatcher := config.NewWatcher(a.cfgStore, a.reloadConfig)
			if errWatcher != nil {
				log.Warnf("config watcher disabled: %v", errWatcher)
			} else {
				if errStart := watcher.Start(ctx); errStart != nil {
					log.Warnf("config watcher disabled: %v", errStart)
				} else {
					defer func() {
						if errStop := watcher.Stop(); errStop != nil {
							log.Debugf("stop config watcher: %v", errStop)
						}
					}()
				}
			}

			srv := mcpserver.NewMCPServer("grounded-search-mcp", version,
				mcpserver.WithToolCapabilities(true),
			)
			tools.Register(srv, tools.Deps{
				Orchestrator: a.orchestrator,
				Flow:         a.flow,
				Store:        a.tokenStore,
				Config:       a.cfgStore,
				Usage:        a.usage,
			})

			log.Infof("grounded-search-mcp %s serving on stdio", version)
			return runStdio(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (rotated) instead of stderr")
	return cmd
}

// runStdio serves until stdin closes or a signal arrives.
func runStdio(ctx context.Context, srv *mcpserver.MCPServer) error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if err := mcpserver.ServeStdio(srv); err != nil {
			done <- err
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}
