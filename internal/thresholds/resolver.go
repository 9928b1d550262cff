// Package thresholds resolves the effective classification thresholds for a station.
package thresholds

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

// Store reads stored threshold rows. found is false when no row exists.
type Store interface {
	StationConfig(ctx context.Context, station string) (cfg domain.ThresholdConfig, found bool, err error)
	GlobalConfig(ctx context.Context) (cfg domain.ThresholdConfig, found bool, err error)
}

// Resolver picks the station row, then the global row, then the built-in defaults.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil store always yields the defaults.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Source names where a resolved configuration came from.
type Source string

const (
	SourceStation Source = "station"
	SourceGlobal  Source = "global"
	SourceDefault Source = "default"
)

// Resolve never fails. Store errors and rows that break the ratio ordering fall through to
// the next source.
func (r *Resolver) Resolve(ctx context.Context, station string) domain.ThresholdConfig {
	cfg, _ := r.ResolveSource(ctx, station)
	return cfg
}

// ResolveSource is Resolve that also reports which source won.
func (r *Resolver) ResolveSource(ctx context.Context, station string) (domain.ThresholdConfig, Source) {
	if r.store == nil {
		return domain.DefaultThresholdConfig(), SourceDefault
	}

	sources := []struct {
		name Source
		load func() (domain.ThresholdConfig, bool, error)
	}{
		{SourceStation, func() (domain.ThresholdConfig, bool, error) { return r.store.StationConfig(ctx, station) }},
		{SourceGlobal, func() (domain.ThresholdConfig, bool, error) { return r.store.GlobalConfig(ctx) }},
	}

	for _, src := range sources {
		cfg, found, err := src.load()
		if err != nil {
			r.logger.Warn("threshold config lookup failed", "source", src.name, "station", station, "error", err)
			continue
		}
		if !found {
			continue
		}
		if err := cfg.Validate(); err != nil {
			r.logger.Warn("ignoring invalid threshold config", "source", src.name, "station", station, "error", err)
			continue
		}
		return cfg, src.name
	}
	return domain.DefaultThresholdConfig(), SourceDefault
}
