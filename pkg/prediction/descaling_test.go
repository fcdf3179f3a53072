package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDescalingModel() *DescalingModel {
	m := NewDescalingModel(DefaultConfig().Descaling)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestDescalingSeverelyScaledDevice(t *testing.T) {
	m := newTestDescalingModel()

	effStart := fixedNow.AddDate(0, 0, -90)
	f := Features{
		FeatureWaterHardness: 260.0,
		FeatureMaintenanceHistory: []MaintenanceEvent{
			{Type: "descaling", Date: fixedNow.AddDate(0, 0, -400)},
		},
		FeatureEfficiency: tempSeries(effStart, 18*24*time.Hour, 90, 90, 90, 80, 80, 80),
	}

	result := m.Predict("wh-scaled", f)
	require.NotNil(t, result)

	// Thickness and time factors saturate; efficiency degrades ~3.7%/30d.
	assert.InDelta(t, 0.922, result.PredictedValue, 0.005)
	assert.GreaterOrEqual(t, result.PredictedValue, 0.7)

	details, ok := result.RawDetails.(*DescalingDetails)
	require.True(t, ok)
	assert.InDelta(t, 400, details.DaysSinceDescaling, 0.5)
	assert.Equal(t, "degrading", details.Efficiency.Trend)
	assert.InDelta(t, 3.704, details.Efficiency.DegradationPctPer30D, 0.001)
	assert.InDelta(t, 1.0, details.ThicknessFactor, 1e-9)
	assert.InDelta(t, 1.0, details.TimeFactor, 1e-9)

	require.NotEmpty(t, result.RecommendedActions)
	assert.Equal(t, SeverityHigh, result.RecommendedActions[0].Severity)

	var ids []string
	for _, a := range result.RecommendedActions {
		ids = append(ids, a.ActionID)
	}
	assert.Contains(t, ids, "wh-scaled_descale_20250615")
	assert.Contains(t, ids, "wh-scaled_water_treatment_20250615")
	assert.Contains(t, ids, "wh-scaled_element_inspection_20250615")
}

func TestDescalingRecentlyDescaledDevice(t *testing.T) {
	m := newTestDescalingModel()

	f := Features{
		FeatureMaintenanceHistory: []MaintenanceEvent{
			{Type: "descaling", Date: fixedNow.AddDate(0, 0, -30)},
		},
	}

	result := m.Predict("wh-clean", f)
	require.NotNil(t, result)

	assert.Less(t, result.PredictedValue, 0.3)

	require.Len(t, result.RecommendedActions, 1)
	assert.Equal(t, SeverityLow, result.RecommendedActions[0].Severity)
	assert.Equal(t, "wh-clean_descaling_20250615", result.RecommendedActions[0].ActionID)
}

func TestDescalingDaysSinceFallbacks(t *testing.T) {
	m := newTestDescalingModel()

	tests := []struct {
		name     string
		f        Features
		wantDays float64
	}{
		{
			name: "descaling event wins over installation",
			f: Features{
				FeatureInstallationDate: fixedNow.AddDate(0, 0, -900),
				FeatureMaintenanceHistory: []MaintenanceEvent{
					{Type: "descaling", Date: fixedNow.AddDate(0, 0, -120)},
				},
			},
			wantDays: 120,
		},
		{
			name: "installation maintenance event",
			f: Features{
				FeatureMaintenanceHistory: []MaintenanceEvent{
					{Type: "installation", Date: fixedNow.AddDate(0, 0, -200)},
				},
			},
			wantDays: 200,
		},
		{
			name:     "installation date feature",
			f:        Features{FeatureInstallationDate: fixedNow.AddDate(0, 0, -300)},
			wantDays: 300,
		},
		{
			name:     "default when nothing known",
			f:        Features{},
			wantDays: 365,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.Predict("wh-days", tt.f)
			details := result.RawDetails.(*DescalingDetails)
			assert.InDelta(t, tt.wantDays, details.DaysSinceDescaling, 0.5)
		})
	}
}

func TestDescalingReminderInHardWater(t *testing.T) {
	m := newTestDescalingModel()

	// Low probability but long interval plus hard water triggers the
	// inspection reminder instead of the monitoring fallback.
	result := &PredictionResult{
		PredictionType: TypeDescaling,
		DeviceID:       "wh-reminder",
		PredictedValue: 0.25,
		Timestamp:      fixedNow,
		RawDetails: &DescalingDetails{
			DaysSinceDescaling: 300,
			WaterHardnessPPM:   150,
		},
	}

	actions := m.RecommendActions(result)
	require.Len(t, actions, 1)
	assert.Equal(t, "wh-reminder_descale_inspection_20250615", actions[0].ActionID)
	assert.Equal(t, SeverityLow, actions[0].Severity)
}

func TestDescalingRecommendActionsFromExistingResult(t *testing.T) {
	m := newTestDescalingModel()

	result := &PredictionResult{
		PredictionType: TypeDescaling,
		DeviceID:       "wh-post",
		PredictedValue: 0.6,
		Timestamp:      fixedNow,
		RawDetails: &DescalingDetails{
			DaysSinceDescaling: 300,
			WaterHardnessPPM:   200,
		},
	}

	actions := m.RecommendActions(result)
	require.Len(t, actions, 2)
	assert.Equal(t, "wh-post_descale_20250615", actions[0].ActionID)
	assert.Equal(t, SeverityMedium, actions[0].Severity)
	assert.Equal(t, "wh-post_water_treatment_20250615", actions[1].ActionID)
}

func TestDegradationPer30Days(t *testing.T) {
	start := fixedNow.AddDate(0, 0, -30)

	tests := []struct {
		name      string
		values    []float64
		wantTrend string
		wantPct   float64
	}{
		{
			name:      "degrading",
			values:    []float64{100, 100, 100, 90, 90, 90},
			wantTrend: "degrading",
			wantPct:   10,
		},
		{
			name:      "improving",
			values:    []float64{90, 90, 90, 100, 100, 100},
			wantTrend: "improving",
			wantPct:   -11.111,
		},
		{
			name:      "stable",
			values:    []float64{100, 100, 100, 100, 100, 100},
			wantTrend: "stable",
			wantPct:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := tempSeries(start, 6*24*time.Hour, tt.values...)
			trend, pct := degradationPer30Days(pts)
			assert.Equal(t, tt.wantTrend, trend)
			assert.InDelta(t, tt.wantPct, pct, 0.001)
		})
	}
}

func TestDescalingConfidenceBounds(t *testing.T) {
	m := newTestDescalingModel()

	bare := m.Predict("wh-bare", Features{})
	assert.InDelta(t, 0.3, bare.Confidence, 1e-9)

	rich := m.Predict("wh-rich", Features{
		FeatureWaterHardness: 150.0,
		FeatureEfficiency:    tempSeries(fixedNow.AddDate(0, 0, -120), 2*24*time.Hour, richSeries(61)...),
		FeatureMaintenanceHistory: []MaintenanceEvent{
			{Type: "descaling", Date: fixedNow.AddDate(0, 0, -100)},
		},
	})
	assert.Greater(t, rich.Confidence, bare.Confidence)
	assert.LessOrEqual(t, rich.Confidence, 0.95)
}

func richSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 90
	}
	return out
}
