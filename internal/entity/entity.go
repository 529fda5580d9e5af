// Package entity models what integrations expose to the hub: entities with
// a state, attributes and the device they belong to, refreshed by a poller.
package entity

import (
	"context"
	"strings"
	"time"
)

// Common state strings.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
)

// Attribute and device keys shared by integrations.
const (
	AttrAttribution   = "attribution"
	DeviceClassSafety = "safety"
	EntryTypeService  = "service"
)

// DeviceInfo describes the (possibly virtual) device an entity belongs to.
type DeviceInfo struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	EntryType    string      `json:"entry_type,omitempty"`
}

// Snapshot is a point-in-time copy of an entity's state.
type Snapshot struct {
	EntityID    string         `json:"entity_id"`
	UniqueID    string         `json:"unique_id,omitempty"`
	Name        string         `json:"name"`
	DeviceClass string         `json:"device_class,omitempty"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Device      *DeviceInfo    `json:"device,omitempty"`
	EntryID     string         `json:"entry_id,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Entity is anything the registry can poll and report.
type Entity interface {
	// EntityID returns the "<platform>.<object id>" identifier
	EntityID() string

	// Update refreshes the entity from its source. An error marks the
	// entity unavailable until the next successful update.
	Update(ctx context.Context) error

	// Snapshot returns the current state
	Snapshot() Snapshot
}

// Slugify turns a display name into an object id: lower case, runs of
// anything other than letters and digits collapsed to "_".
func Slugify(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
