package thresholds_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *thresholds.Manager {
	t.Helper()
	store := memory.NewStore()
	store.PutStation(domain.Station{Code: "E001", Name: "Norte", Capacity: 654})
	resolver := thresholds.NewResolver(store, slog.Default())
	return thresholds.NewManager(resolver, store, store, slog.Default())
}

func TestManager_SaveAndEffective(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	cfg, source := m.Effective(ctx, "E001")
	assert.Equal(t, thresholds.SourceDefault, source)
	assert.Nil(t, cfg.ID)

	global := domain.DefaultThresholdConfig()
	global.HorizonDays = 14
	_, err := m.Save(ctx, "", global)
	require.NoError(t, err)

	cfg, source = m.Effective(ctx, "E001")
	assert.Equal(t, thresholds.SourceGlobal, source)
	assert.Equal(t, 14, cfg.HorizonDays)

	own := domain.DefaultThresholdConfig()
	own.HighRatio = 0.9
	own.ID = ptr(77)
	saved, err := m.Save(ctx, "E001", own)
	require.NoError(t, err)
	require.NotNil(t, saved.ID)
	assert.NotEqual(t, int64(77), *saved.ID, "client IDs are ignored")

	cfg, source = m.Effective(ctx, "E001")
	assert.Equal(t, thresholds.SourceStation, source)
	assert.Equal(t, 0.9, cfg.HighRatio)

	require.NoError(t, m.Deactivate(ctx, *saved.ID))
	_, source = m.Effective(ctx, "E001")
	assert.Equal(t, thresholds.SourceGlobal, source)
}

func TestManager_SaveErrors(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	bad := domain.DefaultThresholdConfig()
	bad.DroughtRatio = 0.9
	_, err := m.Save(ctx, "E001", bad)
	assert.True(t, errors.Is(err, domain.ErrInvalidThresholds), "got %v", err)

	_, err = m.Save(ctx, "E404", domain.DefaultThresholdConfig())
	assert.ErrorIs(t, err, domain.ErrUnknownStation)
}

func TestManager_DeactivateUnknown(t *testing.T) {
	m := newManager(t)

	err := m.Deactivate(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}
