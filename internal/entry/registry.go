package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an entry id is not known to the registry.
var ErrNotFound = errors.New("config entry not found")

// ChangeKind describes what happened to an entry.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// ChangeHandler is called after an entry was added, updated or removed.
// It receives a copy of the entry.
type ChangeHandler func(kind ChangeKind, e *Entry)

// Registry is the in-process view of all config entries. Every mutation is
// written through to the Store before listeners are notified.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	order     []string
	store     Store
	logger    *zap.Logger
	now       func() time.Time
	handlers  []ChangeHandler
	handlerMu sync.RWMutex
}

// NewRegistry creates a registry backed by store
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		store:   store,
		logger:  logger.Named("entries"),
		now:     time.Now,
	}
}

// Load replaces the registry contents with what the store holds
func (r *Registry) Load(ctx context.Context) error {
	entries, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config entries: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(entries))
	r.order = r.order[:0]
	for _, e := range entries {
		r.entries[e.EntryID] = e
		r.order = append(r.order, e.EntryID)
	}

	r.logger.Info("Config entries loaded", zap.Int("count", len(entries)))
	return nil
}

// OnChange registers a handler for entry changes
func (r *Registry) OnChange(handler ChangeHandler) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Add stores a new entry. EntryID and timestamps are assigned here.
func (r *Registry) Add(ctx context.Context, e *Entry) (*Entry, error) {
	if e.Domain == "" {
		return nil, fmt.Errorf("config entry domain cannot be empty")
	}

	added := e.Clone()
	added.EntryID = uuid.NewString()
	now := r.now()
	added.CreatedAt = now
	added.UpdatedAt = now

	r.mu.Lock()
	if err := r.store.Save(ctx, added); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.entries[added.EntryID] = added
	r.order = append(r.order, added.EntryID)
	r.mu.Unlock()

	r.logger.Info("Config entry added",
		zap.String("domain", added.Domain),
		zap.String("entry_id", added.EntryID),
		zap.String("title", added.Title),
		zap.String("source", string(added.Source)))

	r.notify(ChangeAdded, added)
	return added.Clone(), nil
}

// Update applies mutate to a copy of the entry and persists the result.
// EntryID, Domain and CreatedAt cannot be changed.
func (r *Registry) Update(ctx context.Context, entryID string, mutate func(e *Entry)) (*Entry, error) {
	r.mu.Lock()
	current, ok := r.entries[entryID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entryID)
	}

	updated := current.Clone()
	mutate(updated)
	updated.EntryID = current.EntryID
	updated.Domain = current.Domain
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = r.now()

	if err := r.store.Save(ctx, updated); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.entries[entryID] = updated
	r.mu.Unlock()

	r.logger.Info("Config entry updated",
		zap.String("domain", updated.Domain),
		zap.String("entry_id", updated.EntryID))

	r.notify(ChangeUpdated, updated)
	return updated.Clone(), nil
}

// Remove deletes an entry
func (r *Registry) Remove(ctx context.Context, entryID string) error {
	r.mu.Lock()
	current, ok := r.entries[entryID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, entryID)
	}

	if err := r.store.Delete(ctx, entryID); err != nil {
		r.mu.Unlock()
		return err
	}
	delete(r.entries, entryID)
	for i, id := range r.order {
		if id == entryID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("Config entry removed",
		zap.String("domain", current.Domain),
		zap.String("entry_id", entryID))

	r.notify(ChangeRemoved, current)
	return nil
}

// Get returns a copy of the entry with the given id
func (r *Registry) Get(entryID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Entries returns copies of all entries for domain in creation order.
// An empty domain returns every entry.
func (r *Registry) Entries(domain string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entry, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if domain == "" || e.Domain == domain {
			result = append(result, e.Clone())
		}
	}
	return result
}

// ByUniqueID finds the entry of domain carrying uniqueID
func (r *Registry) ByUniqueID(domain, uniqueID string) (*Entry, bool) {
	if uniqueID == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		e := r.entries[id]
		if e.Domain == domain && e.UniqueID == uniqueID {
			return e.Clone(), true
		}
	}
	return nil, false
}

func (r *Registry) notify(kind ChangeKind, e *Entry) {
	r.handlerMu.RLock()
	handlers := append([]ChangeHandler(nil), r.handlers...)
	r.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(kind, e.Clone())
	}
}
