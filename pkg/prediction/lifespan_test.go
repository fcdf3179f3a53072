package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestLifespanModel() *LifespanModel {
	m := NewLifespanModel(DefaultConfig().Lifespan)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestLifespanHealthyYoungDevice(t *testing.T) {
	m := newTestLifespanModel()

	f := Features{
		FeatureInstallationDate: fixedNow.AddDate(-1, 0, 0),
		FeatureWaterHardness:    80.0,
		FeatureTempSettings:     55.0,
		FeatureUsageIntensity:   "normal",
		FeatureComponentHealth: map[string]float64{
			"heating_element":       0.95,
			"thermostat":            0.95,
			"anode_rod":             0.95,
			"pressure_relief_valve": 0.95,
			"tank_integrity":        0.95,
		},
		FeatureMaintenanceHistory: []MaintenanceEvent{
			{Type: "annual_service", Date: fixedNow.AddDate(0, -6, 0)},
		},
	}

	result := m.Predict("wh-young", f)
	require.NotNil(t, result)

	// 10y base * 1.2 regular maintenance = 12y total, ~1y used.
	assert.InDelta(t, 0.9167, result.PredictedValue, 0.001)
	assert.GreaterOrEqual(t, result.PredictedValue, 0.7)
	assert.LessOrEqual(t, result.PredictedValue, 0.95)
	assert.InDelta(t, 0.77, result.Confidence, 1e-9)

	details, ok := result.RawDetails.(*LifespanDetails)
	require.True(t, ok)
	assert.InDelta(t, 1.0, details.CurrentAgeYears, 0.01)
	assert.Equal(t, "adequate", details.DataQuality)

	// No elevated risk: the monitoring fallback is the only action.
	require.Len(t, result.RecommendedActions, 1)
	assert.Equal(t, SeverityLow, result.RecommendedActions[0].Severity)
}

func TestLifespanDegradedOldDevice(t *testing.T) {
	m := newTestLifespanModel()

	f := Features{
		FeatureInstallationDate:   fixedNow.AddDate(-10, 0, 0),
		FeatureWaterHardness:      250.0,
		FeatureTempSettings:       70.0,
		FeatureUsageIntensity:     "heavy",
		FeatureMaintenanceHistory: []MaintenanceEvent{},
		FeatureComponentHealth: map[string]float64{
			"heating_element":       0.5,
			"thermostat":            0.5,
			"anode_rod":             0.2,
			"pressure_relief_valve": 0.5,
			"tank_integrity":        0.35,
		},
	}

	result := m.Predict("wh-old", f)
	require.NotNil(t, result)

	// Age exceeds the adjusted total lifespan; the 5% floor holds.
	assert.InDelta(t, 0.05, result.PredictedValue, 1e-9)

	require.NotEmpty(t, result.RecommendedActions)
	assert.Equal(t, SeverityCritical, result.RecommendedActions[0].Severity)

	var ids []string
	for _, a := range result.RecommendedActions {
		ids = append(ids, a.ActionID)
	}
	assert.Contains(t, ids, "wh-old_tank_integrity_20250615")
	assert.Contains(t, ids, "wh-old_anode_rod_20250615")
	assert.Contains(t, ids, "wh-old_replacement_plan_20250615")
	assert.Contains(t, ids, "wh-old_water_softener_20250615")
	assert.Contains(t, ids, "wh-old_professional_inspection_20250615")
}

func TestLifespanNoFeatures(t *testing.T) {
	m := newTestLifespanModel()

	result := m.Predict("wh-empty", Features{})
	require.NotNil(t, result)

	// Default 5y age against the 10y base lifespan.
	assert.InDelta(t, 0.5, result.PredictedValue, 1e-9)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)

	details, ok := result.RawDetails.(*LifespanDetails)
	require.True(t, ok)
	assert.Equal(t, "limited", details.DataQuality)

	require.Len(t, result.RecommendedActions, 1)
	assert.Equal(t, "wh-empty_data_quality_20250615", result.RecommendedActions[0].ActionID)
}

func TestLifespanAgeFromOperationHours(t *testing.T) {
	m := newTestLifespanModel()

	result := m.Predict("wh-hours", Features{FeatureOperationHours: 14610.0})
	require.NotNil(t, result)

	details, ok := result.RawDetails.(*LifespanDetails)
	require.True(t, ok)
	assert.InDelta(t, 10.0, details.CurrentAgeYears, 0.01)
	assert.Contains(t, result.FeaturesUsed, FeatureOperationHours)
}

func TestLifespanWeightedHealthScaling(t *testing.T) {
	tests := []struct {
		name   string
		health map[string]float64
		want   float64
	}{
		{
			name: "all components at full weight",
			health: map[string]float64{
				"heating_element":       1.0,
				"thermostat":            1.0,
				"anode_rod":             1.0,
				"pressure_relief_valve": 1.0,
				"tank_integrity":        1.0,
			},
			want: 1.0,
		},
		{
			name:   "unknown component gets residual weight",
			health: map[string]float64{"mystery_part": 0.5},
			want:   0.5,
		},
		{
			name: "anode rod dominates via weight",
			health: map[string]float64{
				"anode_rod":  0.0,
				"thermostat": 1.0,
			},
			want: 1.0 * 0.15 / 0.45,
		},
	}

	m := newTestLifespanModel()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.weightedHealth(tt.health), 1e-9)
		})
	}
}

func TestAgeBracket(t *testing.T) {
	assert.Equal(t, "unit is in early service life", ageBracket(1))
	assert.Equal(t, "unit is in mid service life", ageBracket(5))
	assert.Equal(t, "unit is in late service life", ageBracket(8.5))
	assert.Equal(t, "unit has exceeded typical service life", ageBracket(12))
}
