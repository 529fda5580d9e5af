package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hubadapters/internal/clock"

	"go.uber.org/zap"
)

type registered struct {
	entity  Entity
	entryID string
	poller  *Poller
}

// Registry tracks the entities integrations have added and owns their pollers.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*registered
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
}

// Observer is told about every poll and about entities going away.
type Observer interface {
	ObservePoll(snap Snapshot, err error)
	ForgetEntity(entityID string)
}

// NewRegistry creates an empty entity registry
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		entities: make(map[string]*registered),
		clock:    clk,
		logger:   logger.Named("entities"),
	}
}

// SetObserver installs o for entities added from now on
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Add registers e for entryID, updates it once and starts polling it every
// interval. The first update's error is logged, not returned: the entity is
// still added, as unavailable.
func (r *Registry) Add(ctx context.Context, entryID string, e Entity, interval time.Duration) error {
	r.mu.Lock()
	if _, exists := r.entities[e.EntityID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("entity %s already registered", e.EntityID())
	}
	poller := NewPoller(e, interval, r.clock, r.logger)
	poller.observer = r.observer
	r.entities[e.EntityID()] = &registered{entity: e, entryID: entryID, poller: poller}
	r.mu.Unlock()

	// Update before add, so the first snapshot is real.
	_ = poller.PollNow(ctx)
	poller.Start(context.WithoutCancel(ctx))

	r.logger.Info("Entity added",
		zap.String("entity_id", e.EntityID()),
		zap.String("entry_id", entryID),
		zap.Duration("scan_interval", interval))
	return nil
}

// RemoveEntry stops and forgets every entity belonging to entryID
func (r *Registry) RemoveEntry(entryID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, reg := range r.entities {
		if reg.entryID != entryID {
			continue
		}
		reg.poller.Stop()
		delete(r.entities, id)
		removed++
		if r.observer != nil {
			r.observer.ForgetEntity(id)
		}
		r.logger.Info("Entity removed", zap.String("entity_id", id), zap.String("entry_id", entryID))
	}
	return removed
}

// Refresh polls one entity now
func (r *Registry) Refresh(ctx context.Context, entityID string) error {
	r.mu.RLock()
	reg, ok := r.entities[entityID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("entity %s not found", entityID)
	}
	return reg.poller.PollNow(ctx)
}

// Get returns the snapshot of one entity
func (r *Registry) Get(entityID string) (Snapshot, bool) {
	r.mu.RLock()
	reg, ok := r.entities[entityID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	snap := reg.entity.Snapshot()
	snap.EntryID = reg.entryID
	return snap, true
}

// Snapshots returns all entity snapshots sorted by entity id
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	regs := make([]*registered, 0, len(r.entities))
	for _, reg := range r.entities {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	result := make([]Snapshot, 0, len(regs))
	for _, reg := range regs {
		snap := reg.entity.Snapshot()
		snap.EntryID = reg.entryID
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// Stop stops every poller
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.entities {
		reg.poller.Stop()
	}
}
