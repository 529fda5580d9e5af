// Package plugin provides the integration interfaces and registry for the
// hub. Integrations register themselves with the global registry from
// init() functions, so the set compiled into a binary is chosen by imports.
package plugin

import (
	"context"
	"errors"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
)

// Integration adapts one kind of device or service to the hub.
type Integration interface {
	// Domain returns the unique identifier for this integration.
	// Config entries and flows are keyed by it.
	Domain() string

	// ConfigFlow returns the handler driving a new config flow.
	ConfigFlow(f *flow.Flow) flow.Handler

	// SetupEntry starts serving one config entry.
	// - Creates and registers its entities, if any
	// - Returns error if the entry cannot be served
	SetupEntry(ctx context.Context, e *entry.Entry) error

	// UnloadEntry stops serving a config entry and releases its entities.
	UnloadEntry(ctx context.Context, e *entry.Entry) error
}

// OptionsFlowProvider is an optional interface for integrations whose
// entries have user-editable options.
type OptionsFlowProvider interface {
	OptionsFlow(f *flow.Flow, e *entry.Entry) flow.Handler
}

// Importer is an optional interface for integrations that can be configured
// from the settings file. Each returned input starts an import flow.
type Importer interface {
	Imports() []flow.Input
}

// Factory creates an integration instance given a context.
// Factories are registered with the global registry and called during
// startup.
type Factory func(ctx *Context) (Integration, error)

// ErrAuthFailed is wrapped by SetupEntry when the stored credentials were
// rejected. The hub answers it by starting a reauth flow for the entry.
var ErrAuthFailed = errors.New("authentication failed")
