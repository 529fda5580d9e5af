package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hubadapters/internal/entry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownFlow is returned for a flow id that is not in progress.
var ErrUnknownFlow = errors.New("unknown flow")

// ErrUnknownHandler is returned when no integration registered a flow for a domain.
var ErrUnknownHandler = errors.New("no flow handler registered")

// Handler drives the steps of a single flow. Step is called with the step
// id of the form last shown (or the flow source for the first step) and the
// submitted input, which is nil when the step should render its form.
type Handler interface {
	Step(ctx context.Context, stepID string, input Input) (Result, error)
}

// Factory creates the handler for a new config flow.
type Factory func(f *Flow) Handler

// OptionsFactory creates the handler for an options flow on an existing entry.
type OptionsFactory func(f *Flow, e *entry.Entry) Handler

// Observer is told about every step result. Used for metrics.
type Observer interface {
	ObserveStep(domain, stepID string, result Result)
}

type session struct {
	flow    *Flow
	handler Handler
	stepID  string
	running bool       // guarded by Manager.mu
	mu      sync.Mutex // serializes steps of this flow
}

// Manager owns the table of in-progress flows and finishes them against the
// entry registry.
type Manager struct {
	mu        sync.Mutex
	flows     map[string]*session
	factories map[string]Factory
	options   map[string]OptionsFactory
	entries   *entry.Registry
	logger    *zap.Logger
	observer  Observer
}

// NewManager creates a flow manager finishing flows into entries
func NewManager(entries *entry.Registry, logger *zap.Logger) *Manager {
	return &Manager{
		flows:     make(map[string]*session),
		factories: make(map[string]Factory),
		options:   make(map[string]OptionsFactory),
		entries:   entries,
		logger:    logger.Named("flow"),
	}
}

// SetObserver installs an observer for step results
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// Register installs the config flow factory for domain
func (m *Manager) Register(domain string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[domain] = factory
}

// RegisterOptions installs the options flow factory for domain
func (m *Manager) RegisterOptions(domain string, factory OptionsFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[domain] = factory
}

// Entries exposes the registry flows finish into
func (m *Manager) Entries() *entry.Registry {
	return m.entries
}

// Init starts a config flow for domain. The first step run is named after
// the source ("user", "ssdp", "reauth", "import"); data is passed to it as
// input, so a user flow started without data shows its form.
func (m *Manager) Init(ctx context.Context, domain string, fctx Context, data Input) (Result, error) {
	m.mu.Lock()
	factory, ok := m.factories[domain]
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownHandler, domain)
	}

	if fctx.Source == "" {
		fctx.Source = entry.SourceUser
	}

	f := &Flow{
		id:      uuid.NewString(),
		domain:  domain,
		ctx:     fctx,
		manager: m,
	}
	s := &session{flow: f, stepID: string(fctx.Source)}
	s.handler = factory(f)

	// The flow is visible to others while its first step runs, the same as
	// while it waits for input.
	m.mu.Lock()
	m.flows[f.id] = s
	m.mu.Unlock()

	m.logger.Debug("Flow started",
		zap.String("flow_id", f.id),
		zap.String("domain", domain),
		zap.String("source", string(fctx.Source)))

	return m.runStep(ctx, s, data)
}

// InitOptions starts an options flow for an existing entry. The first step is "init".
func (m *Manager) InitOptions(ctx context.Context, entryID string) (Result, error) {
	e, ok := m.entries.Get(entryID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", entry.ErrNotFound, entryID)
	}

	m.mu.Lock()
	factory, ok := m.options[e.Domain]
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: options for %s", ErrUnknownHandler, e.Domain)
	}

	f := &Flow{
		id:      uuid.NewString(),
		domain:  e.Domain,
		ctx:     Context{EntryID: entryID},
		manager: m,
		options: true,
	}
	s := &session{flow: f, stepID: StepInit}
	s.handler = factory(f, e)

	m.mu.Lock()
	m.flows[f.id] = s
	m.mu.Unlock()

	return m.runStep(ctx, s, nil)
}

// StepInit is the first step of every options flow.
const StepInit = "init"

// Configure submits input to the step the flow is waiting on
func (m *Manager) Configure(ctx context.Context, flowID string, input Input) (Result, error) {
	m.mu.Lock()
	s, ok := m.flows[flowID]
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}

	if input == nil {
		input = Input{}
	}
	return m.runStep(ctx, s, input)
}

// Abort drops an in-progress flow
func (m *Manager) Abort(flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flows[flowID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	delete(m.flows, flowID)
	m.logger.Debug("Flow aborted by caller", zap.String("flow_id", flowID))
	return nil
}

// Progress describes an in-progress flow.
type Progress struct {
	FlowID  string  `json:"flow_id"`
	Handler string  `json:"handler"`
	StepID  string  `json:"step_id"`
	Context Context `json:"context"`

	// Running is set while a step of the flow executes. A running flow may
	// be about to finish.
	Running bool `json:"running,omitempty"`
}

// InProgress lists the config flows (not options flows) waiting for input.
// An empty domain lists all of them.
func (m *Manager) InProgress(domain string) []Progress {
	return m.inProgress(domain, "")
}

func (m *Manager) inProgress(domain, exclude string) []Progress {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Progress, 0, len(m.flows))
	for id, s := range m.flows {
		if id == exclude || s.flow.options {
			continue
		}
		if domain != "" && s.flow.domain != domain {
			continue
		}
		result = append(result, Progress{
			FlowID:  id,
			Handler: s.flow.domain,
			StepID:  s.stepID,
			Context: s.flow.ctx,
			Running: s.running,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].FlowID < result[j].FlowID })
	return result
}

// runStep runs the step the session waits on and applies the result.
func (m *Manager) runStep(ctx context.Context, s *session, input Input) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.flow
	if !m.isActive(f.id) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, f.id)
	}
	m.setRunning(s, true)
	defer m.setRunning(s, false)

	stepID := s.stepID
	result, err := s.handler.Step(ctx, stepID, input)
	if err != nil {
		reason, ok := AbortReason(err)
		if !ok {
			m.remove(f.id)
			m.logger.Error("Flow step failed",
				zap.String("flow_id", f.id),
				zap.String("domain", f.domain),
				zap.String("step_id", stepID),
				zap.Error(err))
			return Result{}, fmt.Errorf("flow %s step %s: %w", f.domain, stepID, err)
		}
		result = Abort(reason)
	}

	switch result.Type {
	case ResultForm:
		m.mu.Lock()
		s.stepID = result.StepID
		m.mu.Unlock()
	case ResultCreateEntry:
		result = m.finish(ctx, f, result)
		m.remove(f.id)
	case ResultAbort:
		m.remove(f.id)
	default:
		m.remove(f.id)
		return Result{}, fmt.Errorf("flow %s step %s returned unknown result type %q", f.domain, stepID, result.Type)
	}

	result.FlowID = f.id
	result.Handler = f.domain

	m.logger.Debug("Flow step finished",
		zap.String("flow_id", f.id),
		zap.String("domain", f.domain),
		zap.String("step_id", stepID),
		zap.String("result", string(result.Type)),
		zap.String("reason", result.Reason))

	m.mu.Lock()
	observer := m.observer
	m.mu.Unlock()
	if observer != nil {
		observer.ObserveStep(f.domain, stepID, result)
	}

	return result, nil
}

// finish turns a create_entry result into a stored entry. Options flows
// write their data into the entry's options instead.
func (m *Manager) finish(ctx context.Context, f *Flow, result Result) Result {
	fctx := f.Context()

	if f.options {
		updated, err := m.entries.Update(ctx, fctx.EntryID, func(e *entry.Entry) {
			e.Options = result.Data
		})
		if err != nil {
			m.logger.Error("Failed to save options", zap.String("entry_id", fctx.EntryID), zap.Error(err))
			return Abort("unknown")
		}
		result.Entry = updated
		return result
	}

	// At most one flow completes per unique id.
	if _, exists := m.entries.ByUniqueID(f.domain, fctx.UniqueID); exists {
		return Abort(ReasonAlreadyConfigured)
	}

	created, err := m.entries.Add(ctx, &entry.Entry{
		Domain:   f.domain,
		Title:    result.Title,
		Source:   fctx.Source,
		UniqueID: fctx.UniqueID,
		Data:     result.Data,
		Options:  result.Options,
	})
	if err != nil {
		m.logger.Error("Failed to create config entry", zap.String("domain", f.domain), zap.Error(err))
		return Abort("unknown")
	}
	result.Entry = created

	// Flows still waiting for the same device can no longer finish.
	if fctx.UniqueID != "" {
		for _, p := range m.inProgress(f.domain, f.id) {
			if p.Context.UniqueID == fctx.UniqueID {
				m.remove(p.FlowID)
			}
		}
	}

	return result
}

func (m *Manager) isActive(flowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flows[flowID]
	return ok
}

func (m *Manager) setRunning(s *session, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.running = running
}

func (m *Manager) remove(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowID)
}
