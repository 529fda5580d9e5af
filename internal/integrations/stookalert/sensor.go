package stookalert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hubadapters/internal/entity"
	"hubadapters/internal/ha"

	"go.uber.org/zap"
)

const (
	attribution  = "Data provided by rivm.nl"
	manufacturer = "RIVM"
	model        = "Stookalert"

	// ScanInterval is how often the feed is polled.
	ScanInterval = 60 * time.Minute
)

// AlertClient is the part of the RIVM client the sensor uses.
type AlertClient interface {
	Province() string
	Refresh(ctx context.Context) error
	State() int
	LastUpdated() time.Time
}

// BinarySensor exposes one province's advisory as a safety binary sensor.
type BinarySensor struct {
	client   AlertClient
	entryID  string
	uniqueID string
	haClient ha.HAClient
	readOnly bool
	logger   *zap.Logger

	mu        sync.RWMutex
	isOn      bool
	available bool
}

// NewBinarySensor creates the sensor for a config entry. haClient may be nil.
func NewBinarySensor(client AlertClient, entryID, uniqueID string, haClient ha.HAClient, readOnly bool, logger *zap.Logger) *BinarySensor {
	return &BinarySensor{
		client:   client,
		entryID:  entryID,
		uniqueID: uniqueID,
		haClient: haClient,
		readOnly: readOnly,
		logger:   logger.With(zap.String("province", client.Province())),
	}
}

// Name returns the display name
func (s *BinarySensor) Name() string {
	return "Stookalert " + s.client.Province()
}

// EntityID returns binary_sensor.stookalert_<province>
func (s *BinarySensor) EntityID() string {
	return "binary_sensor." + entity.Slugify(s.Name())
}

// IsOn reports whether the alert is active
func (s *BinarySensor) IsOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOn
}

// Available reports whether the last refresh succeeded
func (s *BinarySensor) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Update refreshes the feed. A failed refresh makes the sensor unavailable
// and is returned to the poller; it is not retried here.
func (s *BinarySensor) Update(ctx context.Context) error {
	if err := s.client.Refresh(ctx); err != nil {
		s.mu.Lock()
		s.available = false
		s.mu.Unlock()
		return fmt.Errorf("refreshing stookalert for %s: %w", s.client.Province(), err)
	}

	isOn := s.client.State() == 1

	s.mu.Lock()
	changed := !s.available || s.isOn != isOn
	s.isOn = isOn
	s.available = true
	s.mu.Unlock()

	if changed {
		s.logger.Info("Stookalert state", zap.Bool("alert", isOn))
	}

	s.mirror(ctx, isOn)
	return nil
}

// mirror copies the state to input_boolean.stookalert_<province>. Failures
// are logged only: Home Assistant being down does not make the feed unavailable.
func (s *BinarySensor) mirror(ctx context.Context, isOn bool) {
	if s.haClient == nil {
		return
	}

	name := entity.Slugify(s.Name())
	if s.readOnly {
		s.logger.Info("READ-ONLY: Would set input_boolean",
			zap.String("entity_id", "input_boolean."+name),
			zap.Bool("value", isOn))
		return
	}

	if err := s.haClient.SetInputBoolean(ctx, name, isOn); err != nil {
		s.logger.Warn("Failed to mirror state to Home Assistant", zap.Error(err))
	}
}

// Snapshot returns the current state with the sensor's static metadata
func (s *BinarySensor) Snapshot() entity.Snapshot {
	s.mu.RLock()
	state := entity.StateUnavailable
	if s.available {
		state = entity.StateOff
		if s.isOn {
			state = entity.StateOn
		}
	}
	s.mu.RUnlock()

	province := s.client.Province()
	return entity.Snapshot{
		EntityID:    s.EntityID(),
		UniqueID:    s.uniqueID,
		Name:        s.Name(),
		DeviceClass: entity.DeviceClassSafety,
		State:       state,
		Attributes: map[string]any{
			entity.AttrAttribution: attribution,
		},
		Device: &entity.DeviceInfo{
			Identifiers:  [][2]string{{Domain, s.entryID}},
			Name:         province,
			Manufacturer: manufacturer,
			Model:        model,
			EntryType:    entity.EntryTypeService,
		},
		LastUpdated: s.client.LastUpdated(),
	}
}
