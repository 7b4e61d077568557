package boardrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager owns the board inventory and hands boards out one holder at a time.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	records map[DeviceID]*DeviceRecord
	order   []DeviceID
	logger  zerolog.Logger
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerLogger sets the Manager's logger
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager scans the inventory once through discoverer. Every discovered
// board starts out available; IDs follow discovery order.
func NewManager(ctx context.Context, discoverer Discoverer, opts ...ManagerOption) (*Manager, error) {
	if discoverer == nil {
		return nil, ErrDiscoveryUnavailable
	}

	m := &Manager{
		records: make(map[DeviceID]*DeviceRecord),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "manager").Logger()

	found, err := discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryUnavailable, err)
	}

	for i, rec := range found {
		rec.ID = DeviceID(i)
		rec.Available = true
		m.records[rec.ID] = &rec
		m.order = append(m.order, rec.ID)
		m.logger.Debug().
			Int("id", i).
			Str("platform", rec.Platform).
			Str("mount_point", rec.MountPoint).
			Str("serial_port", rec.SerialPort).
			Msg("Board discovered")
	}
	return m, nil
}

// Acquire takes the first available board of platform out of the pool.
// It returns ErrDeviceBusy when boards of that platform exist but all are
// held, and ErrDeviceNotFound when there are none.
func (m *Manager) Acquire(platform string) (DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Platform != platform {
			continue
		}
		found = true
		if !rec.Available {
			continue
		}

		rec.Available = false
		m.logger.Info().
			Str("platform", platform).
			Str("mount_point", rec.MountPoint).
			Str("serial_port", rec.SerialPort).
			Int("id", int(id)).
			Msg("Board assigned")
		return *rec, nil
	}

	if found {
		m.logger.Warn().Str("platform", platform).Msg("Board is already in use")
		return DeviceRecord{ID: NoDevice}, fmt.Errorf("%w: %s", ErrDeviceBusy, platform)
	}
	m.logger.Warn().Str("platform", platform).Msg("Board not found")
	return DeviceRecord{ID: NoDevice}, fmt.Errorf("%w: %s", ErrDeviceNotFound, platform)
}

// Release returns a board to the pool. Releasing a board that is already
// available is a usage error.
func (m *Manager) Release(id DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	if rec.Available {
		m.logger.Error().Int("id", int(id)).Str("platform", rec.Platform).Msg("Board is already free")
		return fmt.Errorf("%w: %d (%s)", ErrAlreadyReleased, id, rec.Platform)
	}

	rec.Available = true
	m.logger.Info().Int("id", int(id)).Str("platform", rec.Platform).Msg("Board released")
	return nil
}

// Available reports whether board id is in the pool
func (m *Manager) Available(id DeviceID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	return rec.Available, nil
}

// Records returns a copy of the inventory in discovery order
func (m *Manager) Records() []DeviceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DeviceRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.records[id])
	}
	return out
}
