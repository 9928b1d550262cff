package thresholds

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

// Writer stores and retires threshold rows.
type Writer interface {
	// SaveConfig makes cfg the active row of station, or of the global scope when station
	// is empty, and returns it with its ID.
	SaveConfig(ctx context.Context, station string, cfg domain.ThresholdConfig) (domain.ThresholdConfig, error)
	// DeactivateConfig fails with domain.ErrConfigNotFound for unknown IDs.
	DeactivateConfig(ctx context.Context, id int64) error
}

// StationLookup checks that a station exists.
type StationLookup interface {
	Station(ctx context.Context, code string) (domain.Station, error)
}

// Manager reads the effective configuration and edits stored rows.
type Manager struct {
	resolver *Resolver
	writer   Writer
	stations StationLookup
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(resolver *Resolver, writer Writer, stations StationLookup, logger *slog.Logger) *Manager {
	return &Manager{resolver: resolver, writer: writer, stations: stations, logger: logger}
}

// Effective returns the configuration Resolve would use for station and its source.
func (m *Manager) Effective(ctx context.Context, station string) (domain.ThresholdConfig, Source) {
	return m.resolver.ResolveSource(ctx, station)
}

// Save validates cfg and stores it as the active configuration of station. An empty station
// saves the global configuration.
func (m *Manager) Save(ctx context.Context, station string, cfg domain.ThresholdConfig) (domain.ThresholdConfig, error) {
	cfg.ID = nil
	if err := cfg.Validate(); err != nil {
		return domain.ThresholdConfig{}, fmt.Errorf("%w: %w", domain.ErrInvalidThresholds, err)
	}
	if station != "" {
		if _, err := m.stations.Station(ctx, station); err != nil {
			return domain.ThresholdConfig{}, fmt.Errorf("save thresholds: %w", err)
		}
	}

	saved, err := m.writer.SaveConfig(ctx, station, cfg)
	if err != nil {
		return domain.ThresholdConfig{}, fmt.Errorf("save thresholds: %w", err)
	}
	m.logger.Info("threshold config saved", "station", scopeName(station), "id", *saved.ID)
	return saved, nil
}

// Deactivate retires the configuration with the given ID.
func (m *Manager) Deactivate(ctx context.Context, id int64) error {
	if err := m.writer.DeactivateConfig(ctx, id); err != nil {
		return fmt.Errorf("deactivate thresholds: %w", err)
	}
	m.logger.Info("threshold config deactivated", "id", id)
	return nil
}

func scopeName(station string) string {
	if station == "" {
		return "global"
	}
	return station
}
