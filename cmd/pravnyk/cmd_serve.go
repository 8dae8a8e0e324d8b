package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pravnyk/internal/config"
	"pravnyk/internal/logging"
	"pravnyk/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP endpoint",
	Long: `Starts the MCP protocol endpoint and keeps it running until
SIGINT or SIGTERM. The config file is watched for changes; the logging
section applies without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		comps, err := build(cfg, true)
		if err != nil {
			return err
		}
		defer comps.Close()

		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				logging.Apply(next.Logging)
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("config watcher stopped", zap.Error(err))
			}
		}()

		srv := mcpserver.New(comps.orch, cfg.Server, cfg.Name, cfg.Version)
		logger.Info("serving", zap.String("addr", cfg.Server.Addr))
		return srv.ListenAndServe(ctx)
	},
}
