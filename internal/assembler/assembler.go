// Package assembler builds per-device feature maps from the device
// repository and the telemetry store.
package assembler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"heater-fleet/internal/device"
	"heater-fleet/internal/telemetry"
	"heater-fleet/pkg/prediction"
)

// TelemetryReader is the query subset of the telemetry store the
// assembler depends on.
type TelemetryReader interface {
	Readings(ctx context.Context, deviceID, metric string, since time.Time) ([]telemetry.Reading, error)
	DailyAverages(ctx context.Context, deviceID, metric string, since time.Time) ([]telemetry.DailyAggregate, error)
	OperationHours(ctx context.Context, deviceID string) (float64, error)
}

// Assembler implements prediction.FeatureSource over the repository and
// telemetry store. Telemetry failures degrade the feature map instead of
// failing assembly; a missing device fails it.
type Assembler struct {
	repo     device.Repository
	tel      TelemetryReader
	logger   zerolog.Logger
	lookback time.Duration
	now      func() time.Time
}

// New creates a feature assembler. lookback bounds how much telemetry
// history feeds the models; zero means 90 days.
func New(repo device.Repository, tel TelemetryReader, logger zerolog.Logger, lookback time.Duration) *Assembler {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &Assembler{repo: repo, tel: tel, logger: logger, lookback: lookback, now: time.Now}
}

// metricFeatures maps telemetry metrics to the feature keys models read.
var metricFeatures = []struct {
	metric  string
	feature string
}{
	{telemetry.MetricTemperature, prediction.FeatureTempReadings},
	{telemetry.MetricPressure, prediction.FeaturePressureReadings},
	{telemetry.MetricHeatingCycle, prediction.FeatureHeatingCycles},
	{telemetry.MetricEfficiency, prediction.FeatureEfficiency},
	{telemetry.MetricEnergyUsage, prediction.FeatureEnergyUsage},
	{telemetry.MetricFlowRate, prediction.FeatureFlowRate},
}

// Assemble builds the feature map for deviceID.
func (a *Assembler) Assemble(ctx context.Context, deviceID string) (prediction.Features, error) {
	d, err := a.repo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	features := prediction.Features{}
	if !d.InstallationDate.IsZero() {
		features[prediction.FeatureInstallationDate] = d.InstallationDate
	}
	if d.WaterHardnessPPM > 0 {
		features[prediction.FeatureWaterHardness] = d.WaterHardnessPPM
	}
	if d.TargetTemperature > 0 {
		features[prediction.FeatureTargetTemperature] = d.TargetTemperature
	}
	if d.UsageIntensity != "" {
		features[prediction.FeatureUsageIntensity] = d.UsageIntensity
	}
	if len(d.ComponentHealth) > 0 {
		features[prediction.FeatureComponentHealth] = d.ComponentHealth
	}

	if maint, err := a.repo.ListMaintenance(ctx, deviceID); err != nil {
		a.logger.Warn().Err(err).Str("device_id", deviceID).Msg("maintenance history unavailable")
	} else if len(maint) > 0 {
		events := make([]prediction.MaintenanceEvent, 0, len(maint))
		for _, rec := range maint {
			events = append(events, prediction.MaintenanceEvent{
				Type:     rec.Type,
				Date:     rec.Date,
				Findings: rec.Findings,
			})
		}
		features[prediction.FeatureMaintenanceHistory] = events
	}

	if a.tel == nil {
		return features, nil
	}
	since := a.now().Add(-a.lookback)

	for _, mf := range metricFeatures {
		readings, err := a.tel.Readings(ctx, deviceID, mf.metric, since)
		if err != nil {
			a.logger.Warn().Err(err).Str("device_id", deviceID).Str("metric", mf.metric).
				Msg("telemetry series unavailable")
			continue
		}
		if len(readings) == 0 {
			continue
		}
		series := make([]prediction.Reading, 0, len(readings))
		for _, r := range readings {
			series = append(series, prediction.Reading{Timestamp: r.Timestamp, Value: r.Value})
		}
		features[mf.feature] = series
	}

	if daily, err := a.tel.DailyAverages(ctx, deviceID, telemetry.MetricDailyLiters, since); err != nil {
		a.logger.Warn().Err(err).Str("device_id", deviceID).Msg("daily usage unavailable")
	} else if len(daily) > 0 {
		values := make([]prediction.DailyValue, 0, len(daily))
		for _, agg := range daily {
			values = append(values, prediction.DailyValue{Date: agg.Date, Value: agg.Value})
		}
		features[prediction.FeatureDailyUsage] = values
	}

	if hours, err := a.tel.OperationHours(ctx, deviceID); err != nil {
		a.logger.Warn().Err(err).Str("device_id", deviceID).Msg("operation hours unavailable")
	} else if hours > 0 {
		features[prediction.FeatureOperationHours] = hours
	}

	return features, nil
}
