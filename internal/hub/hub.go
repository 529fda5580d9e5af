// Package hub ties integrations to config entries: it sets entries up when
// they are created or loaded, reloads them when they change and unloads them
// when they are removed.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hubadapters/internal/entity"
	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/pkg/plugin"

	"go.uber.org/zap"
)

// EntryState is the lifecycle state of a config entry in this process.
type EntryState string

const (
	StateNotLoaded      EntryState = "not_loaded"
	StateLoaded         EntryState = "loaded"
	StateSetupError     EntryState = "setup_error"
	StateReauthRequired EntryState = "reauth_required"
)

// EntryStatus is an entry together with its lifecycle state.
type EntryStatus struct {
	*entry.Entry
	State EntryState `json:"state"`
	Error string     `json:"error,omitempty"`
}

type status struct {
	state EntryState
	err   string
}

// Hub owns the running integrations.
type Hub struct {
	entries      *entry.Registry
	flows        *flow.Manager
	entities     *entity.Registry
	integrations map[string]plugin.Integration
	logger       *zap.Logger

	// setupMu serializes setup and unload so a reload never overlaps itself
	setupMu sync.Mutex

	mu     sync.RWMutex
	states map[string]status
}

// New wires integrations to the entry registry. Every integration's config
// flow (and options flow, if it has one) is registered with flows.
func New(entries *entry.Registry, flows *flow.Manager, entities *entity.Registry, integrations []plugin.Integration, logger *zap.Logger) *Hub {
	h := &Hub{
		entries:      entries,
		flows:        flows,
		entities:     entities,
		integrations: make(map[string]plugin.Integration, len(integrations)),
		logger:       logger.Named("hub"),
		states:       make(map[string]status),
	}

	for _, integration := range integrations {
		domain := integration.Domain()
		h.integrations[domain] = integration
		flows.Register(domain, integration.ConfigFlow)
		if provider, ok := integration.(plugin.OptionsFlowProvider); ok {
			flows.RegisterOptions(domain, provider.OptionsFlow)
		}
	}

	entries.OnChange(h.onEntryChange)
	return h
}

// Start loads stored entries, sets each of them up and then runs the
// settings-file imports. Entry setup failures are logged, not returned.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.entries.Load(ctx); err != nil {
		return err
	}

	for _, e := range h.entries.Entries("") {
		h.setup(ctx, e)
	}

	h.runImports(ctx)

	h.logger.Info("Hub started",
		zap.Int("integrations", len(h.integrations)),
		zap.Int("entries", len(h.entries.Entries(""))))
	return nil
}

// Stop unloads every entry and stops polling
func (h *Hub) Stop(ctx context.Context) {
	for _, e := range h.entries.Entries("") {
		h.unload(ctx, e)
	}
	h.entities.Stop()
	h.logger.Info("Hub stopped")
}

// Flows returns the flow manager
func (h *Hub) Flows() *flow.Manager {
	return h.flows
}

// Entries returns the entry registry
func (h *Hub) Entries() *entry.Registry {
	return h.entries
}

// Entities returns the entity registry
func (h *Hub) Entities() *entity.Registry {
	return h.entities
}

// Domains lists the loaded integrations
func (h *Hub) Domains() []string {
	domains := make([]string, 0, len(h.integrations))
	for d := range h.integrations {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Status returns every entry of domain ("" for all) with its state
func (h *Hub) Status(domain string) []EntryStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.entries.Entries(domain)
	result := make([]EntryStatus, 0, len(entries))
	for _, e := range entries {
		st, ok := h.states[e.EntryID]
		if !ok {
			st.state = StateNotLoaded
		}
		result = append(result, EntryStatus{Entry: e, State: st.state, Error: st.err})
	}
	return result
}

// State returns the lifecycle state of one entry
func (h *Hub) State(entryID string) EntryState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.states[entryID]; ok {
		return st.state
	}
	return StateNotLoaded
}

func (h *Hub) onEntryChange(kind entry.ChangeKind, e *entry.Entry) {
	ctx := context.Background()

	switch kind {
	case entry.ChangeAdded:
		h.setup(ctx, e)
	case entry.ChangeUpdated:
		h.unload(ctx, e)
		h.setup(ctx, e)
	case entry.ChangeRemoved:
		h.unload(ctx, e)
		h.mu.Lock()
		delete(h.states, e.EntryID)
		h.mu.Unlock()
	}
}

func (h *Hub) setup(ctx context.Context, e *entry.Entry) {
	integration, ok := h.integrations[e.Domain]
	if !ok {
		h.logger.Warn("No integration for config entry",
			zap.String("domain", e.Domain),
			zap.String("entry_id", e.EntryID))
		h.setState(e.EntryID, StateSetupError, fmt.Sprintf("integration %s not available", e.Domain))
		return
	}

	h.setupMu.Lock()
	err := integration.SetupEntry(ctx, e)
	h.setupMu.Unlock()

	switch {
	case err == nil:
		h.setState(e.EntryID, StateLoaded, "")
		h.logger.Info("Config entry set up",
			zap.String("domain", e.Domain),
			zap.String("entry_id", e.EntryID),
			zap.String("title", e.Title))
	case errors.Is(err, plugin.ErrAuthFailed):
		h.setState(e.EntryID, StateReauthRequired, err.Error())
		h.logger.Warn("Config entry credentials rejected",
			zap.String("domain", e.Domain),
			zap.String("entry_id", e.EntryID),
			zap.Error(err))
		h.startReauth(ctx, e)
	default:
		h.setState(e.EntryID, StateSetupError, err.Error())
		h.logger.Error("Config entry setup failed",
			zap.String("domain", e.Domain),
			zap.String("entry_id", e.EntryID),
			zap.Error(err))
	}
}

func (h *Hub) unload(ctx context.Context, e *entry.Entry) {
	if h.State(e.EntryID) != StateLoaded {
		return
	}
	integration, ok := h.integrations[e.Domain]
	if !ok {
		return
	}

	h.setupMu.Lock()
	err := integration.UnloadEntry(ctx, e)
	h.setupMu.Unlock()

	if err != nil {
		h.logger.Error("Config entry unload failed",
			zap.String("domain", e.Domain),
			zap.String("entry_id", e.EntryID),
			zap.Error(err))
	}
	h.setState(e.EntryID, StateNotLoaded, "")
}

// startReauth opens a reauth flow for e unless one is already waiting. A
// reauth flow whose step is running is finishing, so it does not count.
func (h *Hub) startReauth(ctx context.Context, e *entry.Entry) {
	for _, p := range h.flows.InProgress(e.Domain) {
		if p.Context.Source == entry.SourceReauth && p.Context.EntryID == e.EntryID && !p.Running {
			return
		}
	}

	result, err := h.flows.Init(ctx, e.Domain,
		flow.Context{Source: entry.SourceReauth, EntryID: e.EntryID},
		flow.Input(e.Data))
	if err != nil {
		h.logger.Error("Failed to start reauth flow",
			zap.String("entry_id", e.EntryID),
			zap.Error(err))
		return
	}

	h.logger.Info("Reauth flow waiting for credentials",
		zap.String("entry_id", e.EntryID),
		zap.String("flow_id", result.FlowID))
}

// runImports starts one import flow per settings-file item. Items already
// configured finish with already_configured, so this is safe on every start.
func (h *Hub) runImports(ctx context.Context) {
	for _, domain := range h.Domains() {
		importer, ok := h.integrations[domain].(plugin.Importer)
		if !ok {
			continue
		}

		for _, input := range importer.Imports() {
			result, err := h.flows.Init(ctx, domain, flow.Context{Source: entry.SourceImport}, input)
			if err != nil {
				h.logger.Error("Import failed", zap.String("domain", domain), zap.Error(err))
				continue
			}

			switch result.Type {
			case flow.ResultCreateEntry:
				h.logger.Info("Imported config entry",
					zap.String("domain", domain),
					zap.String("title", result.Title))
			case flow.ResultAbort:
				if result.Reason != flow.ReasonAlreadyConfigured {
					h.logger.Warn("Import aborted",
						zap.String("domain", domain),
						zap.String("reason", result.Reason))
				}
			default:
				// Imports never wait for input.
				_ = h.flows.Abort(result.FlowID)
				h.logger.Warn("Import asked for input",
					zap.String("domain", domain),
					zap.String("step_id", result.StepID),
					zap.Any("errors", result.Errors))
			}
		}
	}
}

func (h *Hub) setState(entryID string, state EntryState, errText string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[entryID] = status{state: state, err: errText}
}
