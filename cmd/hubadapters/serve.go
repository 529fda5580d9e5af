package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hubadapters/internal/api"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Set up all config entries and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, true)
		if err != nil {
			return err
		}
		defer rt.close()

		rt.logger.Info("Starting hub",
			zap.String("version", version),
			zap.String("database", rt.cfg.Database),
			zap.Strings("integrations", rt.hub.Domains()))
		if rt.cfg.HomeAssistant.ReadOnly {
			rt.logger.Info("Running in READ-ONLY mode - no changes will be made to Home Assistant")
		}

		if err := rt.hub.Start(ctx); err != nil {
			return err
		}
		defer rt.hub.Stop(context.Background())

		port := rt.cfg.HTTP.Port
		if servePort != 0 {
			port = servePort
		}
		server := api.NewServer(rt.hub, rt.metrics.Handler(), rt.logger, port)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		rt.logger.Info("Hub running. Press Ctrl+C to exit.")
		<-ctx.Done()
		rt.logger.Info("Shutting down gracefully...")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides the settings file)")
	rootCmd.AddCommand(serveCmd)
}
