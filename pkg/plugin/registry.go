package plugin

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Priority constants for integration registration.
// Higher priority values override lower priority integrations with the same domain.
const (
	// PriorityDefault is the default priority for integrations.
	PriorityDefault = 0

	// PriorityOverride lets a build replace a bundled integration, for
	// example with one talking to a vendor cloud instead of the LAN API.
	PriorityOverride = 100
)

// Info contains metadata about a registered integration.
type Info struct {
	// Domain is the unique identifier for the integration.
	// Integrations with the same domain override based on priority.
	Domain string

	// Description is a human-readable description of the integration.
	Description string

	// Priority determines which integration wins when several register
	// the same domain. Higher priority wins.
	Priority int

	// Factory creates new instances of the integration.
	Factory Factory

	// Order specifies the setup order. Lower values are set up first.
	// Default is 50.
	Order int
}

// Registry manages integration registration and instantiation.
// It supports priority-based override, so a build can replace a bundled
// integration at compile time through its imports.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]Info
	order        []string
}

// NewRegistry creates a new integration registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]Info),
		order:        make([]string, 0),
	}
}

// Register adds an integration to the registry.
// If the domain is already registered, the one with higher priority wins.
// If priorities are equal, the later registration wins.
func (r *Registry) Register(info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Domain == "" {
		return fmt.Errorf("integration domain cannot be empty")
	}

	if info.Factory == nil {
		return fmt.Errorf("integration %s: factory cannot be nil", info.Domain)
	}

	// Set default order if not specified
	if info.Order == 0 {
		info.Order = 50
	}

	existing, exists := r.integrations[info.Domain]
	if exists {
		if info.Priority < existing.Priority {
			log.Printf("Integration %q registration skipped (priority %d < existing %d)",
				info.Domain, info.Priority, existing.Priority)
			return nil
		}

		log.Printf("Integration %q being overridden (priority %d -> %d)",
			info.Domain, existing.Priority, info.Priority)
	}

	r.integrations[info.Domain] = info

	if !exists {
		r.order = append(r.order, info.Domain)
	}

	log.Printf("Integration %q registered (priority %d, order %d): %s",
		info.Domain, info.Priority, info.Order, info.Description)

	return nil
}

// Get returns the info for a domain, or nil if not found.
func (r *Registry) Get(domain string) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.integrations[domain]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered integrations sorted by their setup order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.integrations))
	for _, domain := range r.order {
		result = append(result, r.integrations[domain])
	}

	// Sort by order (lower first), then by domain for stability
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Domain < result[j].Domain
	})

	return result
}

// CreateAll instantiates all registered integrations using the provided
// context, in Order.
func (r *Registry) CreateAll(ctx *Context) ([]Integration, error) {
	infos := r.List()
	result := make([]Integration, 0, len(infos))

	for _, info := range infos {
		integration, err := info.Factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create integration %s: %w", info.Domain, err)
		}
		if integration.Domain() != info.Domain {
			return nil, fmt.Errorf("integration registered as %s reports domain %s", info.Domain, integration.Domain())
		}
		result = append(result, integration)
	}

	return result, nil
}

// Names returns the domains of all registered integrations.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Clear removes all registered integrations. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.integrations = make(map[string]Info)
	r.order = make([]string, 0)
}

// Global registry instance
var globalRegistry = NewRegistry()

// Register adds an integration to the global registry.
// This is typically called from init() functions in integration packages.
func Register(info Info) error {
	return globalRegistry.Register(info)
}

// Get returns integration info from the global registry.
func Get(domain string) *Info {
	return globalRegistry.Get(domain)
}

// List returns all integrations from the global registry.
func List() []Info {
	return globalRegistry.List()
}

// CreateAll creates all integrations from the global registry.
func CreateAll(ctx *Context) ([]Integration, error) {
	return globalRegistry.CreateAll(ctx)
}

// Names returns all integration domains from the global registry.
func Names() []string {
	return globalRegistry.Names()
}

// ClearGlobal clears the global registry. Useful for testing.
func ClearGlobal() {
	globalRegistry.Clear()
}
