// Package stookalert is the hub integration for the RIVM wood-burning
// advisory: one binary sensor per configured province.
package stookalert

import (
	"context"
	"fmt"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	rivm "hubadapters/internal/stookalert"
	"hubadapters/pkg/plugin"

	"go.uber.org/zap"
)

// Domain is the integration domain.
const Domain = "stookalert"

func init() {
	if err := plugin.Register(plugin.Info{
		Domain:      Domain,
		Description: "RIVM stookalert binary sensor per province",
		Priority:    plugin.PriorityDefault,
		Order:       50,
		Factory: func(ctx *plugin.Context) (plugin.Integration, error) {
			return New(ctx), nil
		},
	}); err != nil {
		panic(fmt.Sprintf("failed to register stookalert integration: %v", err))
	}
}

// Integration sets up stookalert entries.
type Integration struct {
	ctx           *plugin.Context
	logger        *zap.Logger
	clientOptions []rivm.Option
}

// New creates the integration. Extra client options are applied to every
// feed client, after the hub clock.
func New(ctx *plugin.Context, opts ...rivm.Option) *Integration {
	return &Integration{
		ctx:           ctx,
		logger:        ctx.Logger.Named(Domain),
		clientOptions: append([]rivm.Option{rivm.WithClock(ctx.Clock)}, opts...),
	}
}

func (i *Integration) Domain() string {
	return Domain
}

func (i *Integration) ConfigFlow(f *flow.Flow) flow.Handler {
	return &configFlow{flow: f, logger: i.logger}
}

// SetupEntry adds the province sensor and starts polling it
func (i *Integration) SetupEntry(ctx context.Context, e *entry.Entry) error {
	client, err := rivm.New(e.DataString(ConfProvince), i.clientOptions...)
	if err != nil {
		return err
	}

	sensor := NewBinarySensor(client, e.EntryID, e.UniqueID, i.ctx.HAClient, i.ctx.ReadOnly, i.logger)
	return i.ctx.Entities.Add(ctx, e.EntryID, sensor, ScanInterval)
}

// UnloadEntry stops the province sensor
func (i *Integration) UnloadEntry(_ context.Context, e *entry.Entry) error {
	i.ctx.Entities.RemoveEntry(e.EntryID)
	return nil
}

// Imports returns one import flow input per province in the settings file
func (i *Integration) Imports() []flow.Input {
	inputs := make([]flow.Input, 0, len(i.ctx.Config.Stookalert))
	for _, s := range i.ctx.Config.Stookalert {
		inputs = append(inputs, flow.Input{ConfProvince: s.Province})
	}
	return inputs
}
