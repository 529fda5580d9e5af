package main

import (
	"context"
	"fmt"
	"os"

	"hubadapters/internal/clock"
	"hubadapters/internal/config"
	"hubadapters/internal/entity"
	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/internal/ha"
	"hubadapters/internal/hub"
	"hubadapters/internal/logger"
	"hubadapters/internal/metrics"
	"hubadapters/pkg/plugin"

	// Integrations register themselves with the plugin registry.
	_ "hubadapters/internal/integrations/fritz"
	_ "hubadapters/internal/integrations/stookalert"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	envFile    string
	devLogging bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "hubadapters",
	Short: "Stookalert and FRITZ!Box adapters for a home automation hub",
	Long: `Runs the stookalert binary sensor and the FRITZ!Box config flows,
stores config entries in SQLite and serves them over a small HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "hubadapters.yaml", "settings file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before the settings file")
	rootCmd.PersistentFlags().BoolVar(&devLogging, "debug", false, "development logging at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// runtime is everything a command needs to talk to entries and flows.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *entry.SQLiteStore
	hub     *hub.Hub
	metrics *metrics.Metrics
	ha      *ha.Client
}

// loadConfig reads the env file and the settings file and builds the logger
// at the configured level.
func loadConfig() (*config.Config, *zap.Logger, error) {
	bootLogger, err := logger.New(config.DefaultLogLevel, devLogging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	config.LoadDotEnv(bootLogger, envFile)

	cfg, err := config.Load(cfgFile, bootLogger)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.LogLevel, devLogging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newRuntime opens the entry store and creates every registered integration.
// withHA connects the Home Assistant client when one is configured.
func newRuntime(ctx context.Context, withHA bool) (*runtime, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := entry.NewSQLiteStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: log, store: store, metrics: metrics.New(true)}

	var haClient ha.HAClient
	if withHA && cfg.HomeAssistant.URL != "" {
		rt.ha = ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, log)
		if err := rt.ha.Connect(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to Home Assistant: %w", err)
		}
		haClient = rt.ha
		log.Info("Connected to Home Assistant",
			zap.String("url", cfg.HomeAssistant.URL),
			zap.Bool("read_only", cfg.HomeAssistant.ReadOnly))
	}

	clk := clock.NewRealClock()
	entries := entry.NewRegistry(store, log)
	entities := entity.NewRegistry(clk, log)
	entities.SetObserver(rt.metrics)
	flows := flow.NewManager(entries, log)
	flows.SetObserver(rt.metrics)

	pctx := plugin.NewContext(haClient, entities, log, clk, cfg.HomeAssistant.ReadOnly, cfg)
	integrations, err := plugin.CreateAll(pctx)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.hub = hub.New(entries, flows, entities, integrations, log)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.ha != nil {
		rt.ha.Disconnect()
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("Failed to close entry store", zap.Error(err))
	}
	rt.logger.Sync()
}
