package plugin

import (
	"hubadapters/internal/clock"
	"hubadapters/internal/config"
	"hubadapters/internal/entity"
	"hubadapters/internal/ha"

	"go.uber.org/zap"
)

// Context provides dependencies to integrations during initialization.
type Context struct {
	// HAClient mirrors entity states into Home Assistant. Nil when no
	// Home Assistant instance is configured.
	HAClient ha.HAClient

	// Entities is where integrations register the entities of their entries.
	Entities *entity.Registry

	// Logger is a structured logger for the integration to use.
	// Integrations should use logger.Named("<domain>") for namespacing.
	Logger *zap.Logger

	// Clock drives polling. Tests pass a clock.MockClock.
	Clock clock.Clock

	// ReadOnly indicates whether the hub is in read-only mode.
	// When true, integrations log what they would send to Home Assistant
	// instead of sending it.
	ReadOnly bool

	// Config is the loaded settings file, used for YAML imports.
	Config *config.Config
}

// NewContext creates a new integration context with all required dependencies.
func NewContext(
	haClient ha.HAClient,
	entities *entity.Registry,
	logger *zap.Logger,
	clk clock.Clock,
	readOnly bool,
	cfg *config.Config,
) *Context {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Context{
		HAClient: haClient,
		Entities: entities,
		Logger:   logger,
		Clock:    clk,
		ReadOnly: readOnly,
		Config:   cfg,
	}
}
