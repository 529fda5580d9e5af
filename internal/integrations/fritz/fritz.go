// Package fritz is the hub integration for AVM FRITZ!Box gateways. It owns
// the config flow (manual, discovery, reauth and import) and the options
// flow for the consider_home timeout.
package fritz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/internal/fritzbox"
	"hubadapters/pkg/plugin"

	"go.uber.org/zap"
)

// Domain is the integration domain.
const Domain = "fritz"

func init() {
	if err := plugin.Register(plugin.Info{
		Domain:      Domain,
		Description: "AVM FRITZ!Box gateway",
		Priority:    plugin.PriorityDefault,
		Order:       40,
		Factory: func(ctx *plugin.Context) (plugin.Integration, error) {
			return New(ctx, fritzbox.DefaultConnector), nil
		},
	}); err != nil {
		panic(fmt.Sprintf("failed to register fritz integration: %v", err))
	}
}

// Integration sets up fritz entries.
type Integration struct {
	ctx       *plugin.Context
	connector fritzbox.Connector
	logger    *zap.Logger

	mu      sync.RWMutex
	devices map[string]*fritzbox.Device
}

// New creates the integration using connector for every device connection.
func New(ctx *plugin.Context, connector fritzbox.Connector) *Integration {
	return &Integration{
		ctx:       ctx,
		connector: connector,
		logger:    ctx.Logger.Named(Domain),
		devices:   make(map[string]*fritzbox.Device),
	}
}

func (i *Integration) Domain() string {
	return Domain
}

func (i *Integration) ConfigFlow(f *flow.Flow) flow.Handler {
	return &configFlow{flow: f, connector: i.connector, logger: i.logger}
}

func (i *Integration) OptionsFlow(_ *flow.Flow, e *entry.Entry) flow.Handler {
	return &optionsFlow{entry: e}
}

// SetupEntry connects to the box with the stored credentials. Rejected
// credentials are reported as plugin.ErrAuthFailed.
func (i *Integration) SetupEntry(ctx context.Context, e *entry.Entry) error {
	host := e.DataString(ConfHost)
	port := e.DataInt(ConfPort, fritzbox.DefaultPort)

	device, err := i.connector.Connect(ctx, fritzbox.Options{
		Host:     host,
		Port:     port,
		Username: e.DataString(ConfUsername),
		Password: e.DataString(ConfPassword),
	})
	if err != nil {
		if errors.Is(err, fritzbox.ErrSecurity) {
			return fmt.Errorf("%w: %s: %v", plugin.ErrAuthFailed, hostPort(host, port), err)
		}
		return fmt.Errorf("connecting to %s: %w", hostPort(host, port), err)
	}

	i.mu.Lock()
	i.devices[e.EntryID] = device
	i.mu.Unlock()

	i.logger.Info("FRITZ!Box ready",
		zap.String("entry_id", e.EntryID),
		zap.String("address", hostPort(host, port)),
		zap.String("model", device.Model),
		zap.Int("consider_home", e.OptionInt(ConfConsiderHome, DefaultConsiderHome)))
	return nil
}

// UnloadEntry forgets the connection of an entry
func (i *Integration) UnloadEntry(_ context.Context, e *entry.Entry) error {
	i.mu.Lock()
	delete(i.devices, e.EntryID)
	i.mu.Unlock()
	return nil
}

// Device returns the box an entry is connected to
func (i *Integration) Device(entryID string) (*fritzbox.Device, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	d, ok := i.devices[entryID]
	return d, ok
}

// Imports returns one import flow input per device in the settings file
func (i *Integration) Imports() []flow.Input {
	inputs := make([]flow.Input, 0, len(i.ctx.Config.Fritz))
	for _, d := range i.ctx.Config.Fritz {
		input := flow.Input{
			ConfHost:     d.Host,
			ConfUsername: d.Username,
		}
		if d.Port != 0 {
			input[ConfPort] = d.Port
		}
		if d.Password != "" {
			input[ConfPassword] = d.Password
		}
		inputs = append(inputs, input)
	}
	return inputs
}
