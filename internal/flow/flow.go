package flow

import (
	"context"
	"maps"

	"hubadapters/internal/entry"
)

// Context is the bookkeeping a flow carries besides its step state. Other
// flows of the same domain see it through InProgress.
type Context struct {
	Source   entry.Source `json:"source"`
	UniqueID string       `json:"unique_id,omitempty"`
	EntryID  string       `json:"entry_id,omitempty"`
	Host     string       `json:"host,omitempty"`
}

// Flow is the handle a Handler uses to talk to the manager: reading and
// updating entries and coordinating with other in-progress flows.
type Flow struct {
	id      string
	domain  string
	ctx     Context
	options bool
	manager *Manager
}

// ID returns the flow id
func (f *Flow) ID() string {
	return f.id
}

// Domain returns the integration domain the flow belongs to
func (f *Flow) Domain() string {
	return f.domain
}

// Context returns a copy of the flow context
func (f *Flow) Context() Context {
	f.manager.mu.Lock()
	defer f.manager.mu.Unlock()
	return f.ctx
}

// SetHost records the device host so concurrent discovery flows can detect each other
func (f *Flow) SetHost(host string) {
	f.manager.mu.Lock()
	defer f.manager.mu.Unlock()
	f.ctx.Host = host
}

// SetUniqueID claims uniqueID for this flow. It fails with an
// already_in_progress abort when another flow of the domain holds it.
func (f *Flow) SetUniqueID(uniqueID string) error {
	for _, p := range f.InProgress() {
		if uniqueID != "" && p.Context.UniqueID == uniqueID {
			return &AbortError{Reason: ReasonAlreadyInProgress}
		}
	}

	f.manager.mu.Lock()
	defer f.manager.mu.Unlock()
	f.ctx.UniqueID = uniqueID
	return nil
}

// AbortIfUniqueIDConfigured aborts with already_configured when an entry
// already carries this flow's unique id. Non-empty updates are merged into
// that entry's data first, so a device that moved gets its new address.
func (f *Flow) AbortIfUniqueIDConfigured(ctx context.Context, updates map[string]any) error {
	uniqueID := f.Context().UniqueID
	if uniqueID == "" {
		return nil
	}

	existing, ok := f.manager.entries.ByUniqueID(f.domain, uniqueID)
	if !ok {
		return nil
	}

	if len(updates) > 0 && !containsAll(existing.Data, updates) {
		if _, err := f.UpdateEntry(ctx, existing.EntryID, func(e *entry.Entry) {
			maps.Copy(e.Data, updates)
		}); err != nil {
			return err
		}
	}

	return &AbortError{Reason: ReasonAlreadyConfigured}
}

// InProgress lists the other config flows of this domain
func (f *Flow) InProgress() []Progress {
	return f.manager.inProgress(f.domain, f.id)
}

// Entries returns the entries of this flow's domain
func (f *Flow) Entries() []*entry.Entry {
	return f.manager.entries.Entries(f.domain)
}

// Entry returns one entry by id
func (f *Flow) Entry(entryID string) (*entry.Entry, bool) {
	return f.manager.entries.Get(entryID)
}

// UpdateEntry changes an existing entry in place
func (f *Flow) UpdateEntry(ctx context.Context, entryID string, mutate func(e *entry.Entry)) (*entry.Entry, error) {
	return f.manager.entries.Update(ctx, entryID, mutate)
}

func containsAll(data, updates map[string]any) bool {
	for k, v := range updates {
		if current, ok := data[k]; !ok || current != v {
			return false
		}
	}
	return true
}
