package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnomalyModel() *AnomalyModel {
	m := NewAnomalyModel(DefaultConfig().Anomaly)
	m.now = func() time.Time { return fixedNow }
	return m
}

func tempSeries(start time.Time, spacing time.Duration, values ...float64) []Reading {
	pts := make([]Reading, len(values))
	for i, v := range values {
		pts[i] = Reading{Timestamp: start.Add(time.Duration(i) * spacing), Value: v}
	}
	return pts
}

func TestAnomalyTemperatureTrend(t *testing.T) {
	m := newTestAnomalyModel()
	start := fixedNow.AddDate(0, 0, -30)

	f := Features{
		FeatureTempReadings: tempSeries(start, 15*24*time.Hour, 140, 149.5, 159),
	}

	result := m.Predict("wh-trend", f)
	require.NotNil(t, result)

	details, ok := result.RawDetails.(*AnomalyDetails)
	require.True(t, ok)

	trend, ok := details.TrendAnalysis["temperature"]
	require.True(t, ok)
	assert.Equal(t, "increasing", trend.TrendDirection)
	assert.Equal(t, "thermostat", trend.ProbableComponent)
	assert.InDelta(t, 0.633, trend.RatePerDay, 0.001)
	// 1 degree of headroom to the 160 critical at 0.633/day.
	assert.Equal(t, 1, trend.DaysUntilCritical)

	require.NotEmpty(t, result.RecommendedActions)
	assert.Equal(t, SeverityHigh, result.RecommendedActions[0].Severity)
	assert.Equal(t, "wh-trend_temp_trend_20250615", result.RecommendedActions[0].ActionID)
}

func TestAnomalyTemperatureSpike(t *testing.T) {
	m := newTestAnomalyModel()
	start := fixedNow.AddDate(0, 0, -2)

	f := Features{
		FeatureTempReadings: tempSeries(start, 24*time.Hour, 120, 130, 120),
	}

	result := m.Predict("wh-spike", f)
	details := result.RawDetails.(*AnomalyDetails)

	assert.Empty(t, details.TrendAnalysis)
	require.Len(t, details.Anomalies, 1)
	spike := details.Anomalies[0]
	assert.Equal(t, "temperature", spike.Metric)
	assert.Equal(t, "spike", spike.Type)
	assert.InDelta(t, 130.0, spike.Value, 1e-9)
	assert.InDelta(t, 8.33, spike.DeviationPct, 0.01)

	// severity = (1 anomaly * 0.15) / 5
	assert.InDelta(t, 0.03, result.PredictedValue, 1e-9)
}

func TestAnomalyPressureStepAndSustained(t *testing.T) {
	m := newTestAnomalyModel()
	start := fixedNow.AddDate(0, 0, -5)

	f := Features{
		FeaturePressureReadings: tempSeries(start, 24*time.Hour, 300, 300, 300, 340, 340),
	}

	result := m.Predict("wh-pressure", f)
	details := result.RawDetails.(*AnomalyDetails)

	require.Len(t, details.Anomalies, 2)
	types := []string{details.Anomalies[0].Type, details.Anomalies[1].Type}
	assert.Contains(t, types, "spike")
	assert.Contains(t, types, "sustained_high")

	require.NotEmpty(t, result.RecommendedActions)
	check := result.RecommendedActions[0]
	assert.Equal(t, "wh-pressure_pressure_check_20250615", check.ActionID)
	assert.Equal(t, SeverityMedium, check.Severity)
}

func TestAnomalyHeatingCycleTrend(t *testing.T) {
	m := newTestAnomalyModel()
	start := fixedNow.AddDate(0, 0, -6)

	f := Features{
		FeatureHeatingCycles: tempSeries(start, 24*time.Hour, 30, 30, 30, 48, 48, 48),
	}

	result := m.Predict("wh-cycles", f)
	details := result.RawDetails.(*AnomalyDetails)

	trend, ok := details.TrendAnalysis["heating_cycles"]
	require.True(t, ok)
	assert.Equal(t, "longer", trend.TrendDirection)
	assert.Equal(t, "heating_element", trend.ProbableComponent)
	assert.InDelta(t, 23.08, trend.PercentChange, 0.01)
	assert.Equal(t, 60, trend.DaysUntilCritical)

	require.NotEmpty(t, result.RecommendedActions)
	assert.Equal(t, SeverityLow, result.RecommendedActions[0].Severity)
}

func TestAnomalyNoTelemetry(t *testing.T) {
	m := newTestAnomalyModel()

	result := m.Predict("wh-silent", Features{})
	require.NotNil(t, result)

	assert.Zero(t, result.PredictedValue)
	assert.InDelta(t, 0.35, result.Confidence, 1e-9)

	require.Len(t, result.RecommendedActions, 1)
	assert.Equal(t, SeverityLow, result.RecommendedActions[0].Severity)

	details := result.RawDetails.(*AnomalyDetails)
	assert.Zero(t, details.TrendCount)
	assert.Zero(t, details.AnomalyCount)
}

func TestAnomalyShortSeriesIgnored(t *testing.T) {
	m := newTestAnomalyModel()
	start := fixedNow.AddDate(0, 0, -1)

	// Two temperature points are below the minimum of three.
	f := Features{
		FeatureTempReadings: tempSeries(start, 12*time.Hour, 120, 160),
	}

	result := m.Predict("wh-short", f)
	assert.NotContains(t, result.FeaturesUsed, FeatureTempReadings)
	assert.Zero(t, result.PredictedValue)
}

func TestCapDays(t *testing.T) {
	tests := []struct {
		name string
		days float64
		want int
	}{
		{"normal projection", 12.7, 12},
		{"zero means never", 0, 9999},
		{"beyond sentinel capped", 20000, 9999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, capDays(tt.days, 9999))
		})
	}
}
