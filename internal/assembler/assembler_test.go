package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heater-fleet/internal/device"
	"heater-fleet/internal/repository/mock"
	"heater-fleet/internal/telemetry"
	"heater-fleet/pkg/prediction"
)

type fakeTelemetry struct {
	readings map[string][]telemetry.Reading
	daily    []telemetry.DailyAggregate
	hours    float64
	err      error
}

func (f *fakeTelemetry) Readings(_ context.Context, _, metric string, _ time.Time) ([]telemetry.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.readings[metric], nil
}

func (f *fakeTelemetry) DailyAverages(_ context.Context, _, _ string, _ time.Time) ([]telemetry.DailyAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

func (f *fakeTelemetry) OperationHours(_ context.Context, _ string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.hours, nil
}

func seedDevice(t *testing.T, repo device.Repository) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &device.Device{
		ID:                "wh-1",
		Name:              "Test heater",
		InstallationDate:  time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		WaterHardnessPPM:  180,
		TargetTemperature: 55,
		UsageIntensity:    "heavy",
		ComponentHealth:   map[string]float64{"anode_rod": 0.4},
	}))
	require.NoError(t, repo.AddMaintenance(context.Background(), &device.MaintenanceRecord{
		DeviceID: "wh-1",
		Type:     "descaling",
		Date:     time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Findings: "moderate scale",
	}))
}

func TestAssembleMetadataAndMaintenance(t *testing.T) {
	repo := mock.New()
	seedDevice(t, repo)

	a := New(repo, nil, zerolog.Nop(), 0)

	features, err := a.Assemble(context.Background(), "wh-1")
	require.NoError(t, err)

	installed, ok := features.Time(prediction.FeatureInstallationDate)
	require.True(t, ok)
	assert.Equal(t, 2021, installed.Year())
	assert.InDelta(t, 180.0, features.Float(prediction.FeatureWaterHardness, 0), 1e-9)
	assert.InDelta(t, 55.0, features.Float(prediction.FeatureTargetTemperature, 0), 1e-9)

	intensity, _ := features.String(prediction.FeatureUsageIntensity)
	assert.Equal(t, "heavy", intensity)

	health := features.ComponentHealth()
	assert.InDelta(t, 0.4, health["anode_rod"], 1e-9)

	maint := features.Maintenance()
	require.Len(t, maint, 1)
	assert.Equal(t, "descaling", maint[0].Type)
	assert.Equal(t, "moderate scale", maint[0].Findings)
}

func TestAssembleTelemetrySeries(t *testing.T) {
	repo := mock.New()
	seedDevice(t, repo)

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tel := &fakeTelemetry{
		readings: map[string][]telemetry.Reading{
			telemetry.MetricTemperature: {
				{DeviceID: "wh-1", Metric: telemetry.MetricTemperature, Value: 120, Timestamp: ts},
				{DeviceID: "wh-1", Metric: telemetry.MetricTemperature, Value: 122, Timestamp: ts.Add(time.Hour)},
			},
		},
		daily: []telemetry.DailyAggregate{{Date: ts, Value: 210}},
		hours: 8000,
	}

	a := New(repo, tel, zerolog.Nop(), 30*24*time.Hour)

	features, err := a.Assemble(context.Background(), "wh-1")
	require.NoError(t, err)

	temps := features.Series(prediction.FeatureTempReadings)
	require.Len(t, temps, 2)
	assert.InDelta(t, 120.0, temps[0].Value, 1e-9)

	// Metrics with no rows stay absent so models fall back cleanly.
	assert.False(t, features.Has(prediction.FeaturePressureReadings))

	daily := features.Daily(prediction.FeatureDailyUsage)
	require.Len(t, daily, 1)
	assert.InDelta(t, 210.0, daily[0].Value, 1e-9)

	assert.InDelta(t, 8000.0, features.Float(prediction.FeatureOperationHours, 0), 1e-9)
}

func TestAssembleMissingDeviceFails(t *testing.T) {
	a := New(mock.New(), nil, zerolog.Nop(), 0)

	_, err := a.Assemble(context.Background(), "wh-nope")
	assert.Error(t, err)
}

func TestAssembleTelemetryFailureDegrades(t *testing.T) {
	repo := mock.New()
	seedDevice(t, repo)

	tel := &fakeTelemetry{err: errors.New("clickhouse unreachable")}
	a := New(repo, tel, zerolog.Nop(), 0)

	features, err := a.Assemble(context.Background(), "wh-1")
	require.NoError(t, err, "telemetry failures must not fail assembly")

	// Metadata is still present; telemetry-derived keys are not.
	assert.True(t, features.Has(prediction.FeatureWaterHardness))
	assert.False(t, features.Has(prediction.FeatureTempReadings))
	assert.False(t, features.Has(prediction.FeatureDailyUsage))
	assert.False(t, features.Has(prediction.FeatureOperationHours))
}
