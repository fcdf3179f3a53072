package prediction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable heuristic constant used by the models.
// Defaults encode the shipped behavior; a YAML file can override any subset
// so thresholds can be tuned and tested independently of the control flow.
type Config struct {
	Lifespan    LifespanConfig    `yaml:"lifespan"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Usage       UsageConfig       `yaml:"usage"`
	MultiFactor MultiFactorConfig `yaml:"multi_factor"`
	Descaling   DescalingConfig   `yaml:"descaling"`
}

// LifespanConfig tunes the lifespan estimation model.
type LifespanConfig struct {
	BaseLifespanYears float64 `yaml:"base_lifespan_years"`
	DefaultAgeYears   float64 `yaml:"default_age_years"`
	// OperationHoursPerYear converts total operation hours into an age
	// estimate, assuming roughly 4 hours of active heating per day.
	OperationHoursPerYear float64 `yaml:"operation_hours_per_year"`

	// Water hardness thresholds in ppm and the lifespan factor per band.
	HardnessSoftPPM     float64 `yaml:"hardness_soft_ppm"`
	HardnessModeratePPM float64 `yaml:"hardness_moderate_ppm"`
	HardnessHardPPM     float64 `yaml:"hardness_hard_ppm"`
	FactorSoftWater     float64 `yaml:"factor_soft_water"`
	FactorModerateWater float64 `yaml:"factor_moderate_water"`
	FactorHardWater     float64 `yaml:"factor_hard_water"`
	FactorVeryHardWater float64 `yaml:"factor_very_hard_water"`

	// Temperature setpoint bands in °C.
	TempLowMaxC    float64 `yaml:"temp_low_max_c"`
	TempHighMinC   float64 `yaml:"temp_high_min_c"`
	FactorLowTemp  float64 `yaml:"factor_low_temp"`
	FactorHighTemp float64 `yaml:"factor_high_temp"`

	FactorLightUsage float64 `yaml:"factor_light_usage"`
	FactorHeavyUsage float64 `yaml:"factor_heavy_usage"`

	// Maintenance frequency = events relative to one expected event per year.
	MaintRegularRatio    float64 `yaml:"maint_regular_ratio"`
	MaintOccasionalRatio float64 `yaml:"maint_occasional_ratio"`
	FactorMaintRegular   float64 `yaml:"factor_maint_regular"`
	FactorMaintNeglected float64 `yaml:"factor_maint_neglected"`

	ComponentWeights       map[string]float64 `yaml:"component_weights"`
	UnknownComponentWeight float64            `yaml:"unknown_component_weight"`
	HealthScaleThreshold   float64            `yaml:"health_scale_threshold"`
	HealthScaleFloor       float64            `yaml:"health_scale_floor"`

	MinRemaining    float64 `yaml:"min_remaining"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	ConfidenceCap   float64 `yaml:"confidence_cap"`
}

// AnomalyConfig tunes the anomaly detection model.
type AnomalyConfig struct {
	TempTrendRatePerDay float64 `yaml:"temp_trend_rate_per_day"`
	TempCriticalHigh    float64 `yaml:"temp_critical_high"`
	TempCriticalLow     float64 `yaml:"temp_critical_low"`
	TempSpikeDelta      float64 `yaml:"temp_spike_delta"`

	PressureStepKPa     float64 `yaml:"pressure_step_kpa"`
	PressureBaselinePct float64 `yaml:"pressure_baseline_pct"`

	CycleTrendPct float64 `yaml:"cycle_trend_pct"`
	// Days-until-critical bands for heating cycle trend severity.
	CycleSeverityBands []float64 `yaml:"cycle_severity_bands"`
	CycleSeverityDays  []int     `yaml:"cycle_severity_days"`

	// NeverDays is the sentinel for "not approaching any critical value".
	NeverDays int `yaml:"never_days"`

	AnomalyWeight   float64 `yaml:"anomaly_weight"`
	TrendWeight     float64 `yaml:"trend_weight"`
	SeverityDivisor float64 `yaml:"severity_divisor"`
}

// UsageConfig tunes the usage pattern model.
type UsageConfig struct {
	LightMaxLiters   float64 `yaml:"light_max_liters"`
	LightMaxCycles   float64 `yaml:"light_max_cycles"`
	HeavyMinLiters   float64 `yaml:"heavy_min_liters"`
	HeavyMinCycles   float64 `yaml:"heavy_min_cycles"`
	MinDailyRecords  int     `yaml:"min_daily_records"`
	MinTrendRecords  int     `yaml:"min_trend_records"`
	TrendStablePct   float64 `yaml:"trend_stable_pct"`

	// BaseWearFactors[component][class] with class one of light/normal/heavy.
	BaseWearFactors map[string]map[string]float64 `yaml:"base_wear_factors"`

	// Temperature multiplier bands over average target temperature in °F.
	TempBandsF      []float64 `yaml:"temp_bands_f"`
	TempMultipliers []float64 `yaml:"temp_multipliers"`

	ComponentBaseDays   map[string]float64 `yaml:"component_base_days"`
	ComponentBaseImpact map[string]float64 `yaml:"component_base_impact"`
	HeavyDaysPenalty    float64            `yaml:"heavy_days_penalty"`
	LightDaysBonus      float64            `yaml:"light_days_bonus"`

	DeclineRatePctPerYear map[string]float64 `yaml:"decline_rate_pct_per_year"`
	AgeBandsYears         []float64          `yaml:"age_bands_years"`
	AgeMultipliers        []float64          `yaml:"age_multipliers"`

	// Normalization of average wear factor into predicted value:
	// (avg - WearBaseline) / WearRange clamped to [0,1].
	WearBaseline float64 `yaml:"wear_baseline"`
	WearRange    float64 `yaml:"wear_range"`
}

// MultiFactorConfig tunes the multi-factor model.
type MultiFactorConfig struct {
	FactorWeights map[string]float64 `yaml:"factor_weights"`

	HardnessBandsPPM    []float64 `yaml:"hardness_bands_ppm"`
	HardnessImpacts     []float64 `yaml:"hardness_impacts"`
	PHOptimal           float64   `yaml:"ph_optimal"`
	PHImpactRange       float64   `yaml:"ph_impact_range"`
	TDSBandsPPM         []float64 `yaml:"tds_bands_ppm"`
	TDSImpacts          []float64 `yaml:"tds_impacts"`
	WaterHardnessWeight float64   `yaml:"water_hardness_weight"`
	WaterPHWeight       float64   `yaml:"water_ph_weight"`
	WaterTDSWeight      float64   `yaml:"water_tds_weight"`

	AmbientTempMinF    float64 `yaml:"ambient_temp_min_f"`
	AmbientTempMaxF    float64 `yaml:"ambient_temp_max_f"`
	AmbientTempRange   float64 `yaml:"ambient_temp_range"`
	HumidityMinPct     float64 `yaml:"humidity_min_pct"`
	HumidityMaxPct     float64 `yaml:"humidity_max_pct"`
	HumidityRange      float64 `yaml:"humidity_range"`
	AmbientTempWeight  float64 `yaml:"ambient_temp_weight"`
	AmbientHumidWeight float64 `yaml:"ambient_humid_weight"`

	InteractionHealthThreshold float64                       `yaml:"interaction_health_threshold"`
	InteractionMatrix          map[string]map[string]float64 `yaml:"interaction_matrix"`

	MaintenanceIntervalsDays map[string]float64 `yaml:"maintenance_intervals_days"`
	GapOverdueRatio          float64            `yaml:"gap_overdue_ratio"`
	GapDueSoonRatio          float64            `yaml:"gap_due_soon_ratio"`

	RiskMediumThreshold float64 `yaml:"risk_medium_threshold"`
	RiskHighThreshold   float64 `yaml:"risk_high_threshold"`

	MonthsToFailureBase float64   `yaml:"months_to_failure_base"`
	MonthsToFailureExp  float64   `yaml:"months_to_failure_exp"`
	AgeBandsYears       []float64 `yaml:"age_bands_years"`
	AgeFactors          []float64 `yaml:"age_factors"`

	// Scale buildup projection for the environmental impact block.
	ScaleRatesMMPerYear map[string]float64 `yaml:"scale_rates_mm_per_year"`
	ScaleTempBandsF     []float64          `yaml:"scale_temp_bands_f"`
	ScaleTempMults      []float64          `yaml:"scale_temp_mults"`
	ScaleCriticalMM     float64            `yaml:"scale_critical_mm"`
}

// DescalingConfig tunes the descaling requirement model.
type DescalingConfig struct {
	DefaultDaysSince float64 `yaml:"default_days_since"`

	HardnessBandsPPM []float64 `yaml:"hardness_bands_ppm"`
	HardnessFactors  []float64 `yaml:"hardness_factors"`
	MMPerYearCeiling float64   `yaml:"mm_per_year_ceiling"`
	MaxThicknessMM   float64   `yaml:"max_thickness_mm"`

	EffDegradationWeight float64 `yaml:"eff_degradation_weight"`
	FlowChangeWeight     float64 `yaml:"flow_change_weight"`
	CycleChangeWeight    float64 `yaml:"cycle_change_weight"`

	ThicknessWeight  float64 `yaml:"thickness_weight"`
	TimeWeight       float64 `yaml:"time_weight"`
	EfficiencyWeight float64 `yaml:"efficiency_weight"`

	ThicknessNormMM  float64 `yaml:"thickness_norm_mm"`
	TimeNormDays     float64 `yaml:"time_norm_days"`
	EffNormPctPer30D float64 `yaml:"eff_norm_pct_per_30d"`

	TierHigh   float64 `yaml:"tier_high"`
	TierMedium float64 `yaml:"tier_medium"`
	TierLow    float64 `yaml:"tier_low"`

	ReminderMinDays     float64 `yaml:"reminder_min_days"`
	ReminderMinHardness float64 `yaml:"reminder_min_hardness"`
	TreatmentHardness   float64 `yaml:"treatment_hardness"`

	ConfidenceFloor float64 `yaml:"confidence_floor"`
	ConfidenceCap   float64 `yaml:"confidence_cap"`
}

// DefaultConfig returns the shipped heuristic constants.
func DefaultConfig() Config {
	return Config{
		Lifespan: LifespanConfig{
			BaseLifespanYears:     10,
			DefaultAgeYears:       5,
			OperationHoursPerYear: 1461,

			HardnessSoftPPM:     60,
			HardnessModeratePPM: 120,
			HardnessHardPPM:     180,
			FactorSoftWater:     1.1,
			FactorModerateWater: 1.0,
			FactorHardWater:     0.9,
			FactorVeryHardWater: 0.8,

			TempLowMaxC:    50,
			TempHighMinC:   60,
			FactorLowTemp:  1.15,
			FactorHighTemp: 0.85,

			FactorLightUsage: 1.2,
			FactorHeavyUsage: 0.8,

			MaintRegularRatio:    0.8,
			MaintOccasionalRatio: 0.4,
			FactorMaintRegular:   1.2,
			FactorMaintNeglected: 0.7,

			ComponentWeights: map[string]float64{
				"heating_element":       0.25,
				"thermostat":            0.15,
				"anode_rod":             0.30,
				"pressure_relief_valve": 0.10,
				"tank_integrity":        0.20,
			},
			UnknownComponentWeight: 0.1,
			HealthScaleThreshold:   0.7,
			HealthScaleFloor:       0.7,

			MinRemaining:    0.05,
			ConfidenceFloor: 0.3,
			ConfidenceCap:   0.95,
		},
		Anomaly: AnomalyConfig{
			TempTrendRatePerDay: 0.5,
			TempCriticalHigh:    160,
			TempCriticalLow:     110,
			TempSpikeDelta:      5,

			PressureStepKPa:     10,
			PressureBaselinePct: 0.05,

			CycleTrendPct:      20,
			CycleSeverityBands: []float64{25, 40, 60},
			CycleSeverityDays:  []int{60, 30, 14, 7},

			NeverDays: 9999,

			AnomalyWeight:   0.15,
			TrendWeight:     0.05,
			SeverityDivisor: 5,
		},
		Usage: UsageConfig{
			LightMaxLiters:  100,
			LightMaxCycles:  4,
			HeavyMinLiters:  250,
			HeavyMinCycles:  10,
			MinDailyRecords: 7,
			MinTrendRecords: 14,
			TrendStablePct:  10,

			BaseWearFactors: map[string]map[string]float64{
				"heating_element": {"light": 0.8, "normal": 1.0, "heavy": 1.4},
				"thermostat":      {"light": 0.9, "normal": 1.0, "heavy": 1.2},
				"anode_rod":       {"light": 0.9, "normal": 1.0, "heavy": 1.3},
				"tank_integrity":  {"light": 0.9, "normal": 1.0, "heavy": 1.2},
			},

			TempBandsF:      []float64{110, 130, 140},
			TempMultipliers: []float64{0.8, 1.0, 1.2, 1.5},

			ComponentBaseDays: map[string]float64{
				"heating_element": 365,
				"thermostat":      730,
				"anode_rod":       545,
				"tank_integrity":  1095,
			},
			ComponentBaseImpact: map[string]float64{
				"heating_element": 15,
				"thermostat":      8,
				"anode_rod":       5,
				"tank_integrity":  10,
			},
			HeavyDaysPenalty: 0.8,
			LightDaysBonus:   1.2,

			DeclineRatePctPerYear: map[string]float64{
				"light":  3,
				"normal": 5,
				"heavy":  8,
			},
			AgeBandsYears:  []float64{4, 7, 10},
			AgeMultipliers: []float64{1.0, 1.1, 1.3, 1.5},

			WearBaseline: 0.7,
			WearRange:    1.3,
		},
		MultiFactor: MultiFactorConfig{
			FactorWeights: map[string]float64{
				"water_quality":          0.20,
				"ambient_conditions":     0.15,
				"component_interactions": 0.25,
				"usage_patterns":         0.20,
				"maintenance_history":    0.20,
			},

			HardnessBandsPPM:    []float64{60, 120, 180},
			HardnessImpacts:     []float64{0.1, 0.3, 0.6, 0.9},
			PHOptimal:           7.5,
			PHImpactRange:       2.5,
			TDSBandsPPM:         []float64{100, 300, 500},
			TDSImpacts:          []float64{0.1, 0.4, 0.7, 0.9},
			WaterHardnessWeight: 0.5,
			WaterPHWeight:       0.3,
			WaterTDSWeight:      0.2,

			AmbientTempMinF:    40,
			AmbientTempMaxF:    85,
			AmbientTempRange:   30,
			HumidityMinPct:     30,
			HumidityMaxPct:     70,
			HumidityRange:      30,
			AmbientTempWeight:  0.6,
			AmbientHumidWeight: 0.4,

			InteractionHealthThreshold: 0.8,
			InteractionMatrix: map[string]map[string]float64{
				"heating_element": {"thermostat": 0.4, "anode_rod": 0.2, "tank_integrity": 0.3},
				"thermostat":      {"heating_element": 0.9, "anode_rod": 0.1, "tank_integrity": 0.2},
				"anode_rod":       {"heating_element": 0.3, "thermostat": 0.1, "tank_integrity": 0.8},
				"tank_integrity":  {"heating_element": 0.2, "thermostat": 0.1, "anode_rod": 0.3},
			},

			MaintenanceIntervalsDays: map[string]float64{
				"anode_rod_check":       365,
				"heating_element_check": 730,
				"thermostat_check":      730,
				"tank_inspection":       365,
				"system_flush":          180,
				"pressure_valve_test":   180,
			},
			GapOverdueRatio: 1.2,
			GapDueSoonRatio: 0.8,

			RiskMediumThreshold: 0.4,
			RiskHighThreshold:   0.7,

			MonthsToFailureBase: 60,
			MonthsToFailureExp:  1.5,
			AgeBandsYears:       []float64{4, 8, 12},
			AgeFactors:          []float64{1.0, 0.7, 0.5, 0.3},

			ScaleRatesMMPerYear: map[string]float64{
				"low":       0.5,
				"moderate":  1.0,
				"high":      2.5,
				"very_high": 4.0,
			},
			ScaleTempBandsF: []float64{120, 140, 150},
			ScaleTempMults:  []float64{0.8, 1.0, 1.2, 1.5},
			ScaleCriticalMM: 2.5,
		},
		Descaling: DescalingConfig{
			DefaultDaysSince: 365,

			HardnessBandsPPM: []float64{60, 120, 180, 250},
			HardnessFactors:  []float64{0.2, 0.4, 0.6, 0.8, 1.0},
			MMPerYearCeiling: 5.0,
			MaxThicknessMM:   10.0,

			EffDegradationWeight: 0.04,
			FlowChangeWeight:     0.02,
			CycleChangeWeight:    0.02,

			ThicknessWeight:  0.5,
			TimeWeight:       0.2,
			EfficiencyWeight: 0.3,

			ThicknessNormMM:  4.0,
			TimeNormDays:     365,
			EffNormPctPer30D: 5.0,

			TierHigh:   0.8,
			TierMedium: 0.5,
			TierLow:    0.3,

			ReminderMinDays:     270,
			ReminderMinHardness: 120,
			TreatmentHardness:   180,

			ConfidenceFloor: 0.1,
			ConfidenceCap:   0.95,
		},
	}
}

// LoadConfig reads a YAML override file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read model config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse model config: %w", err)
	}
	return cfg, nil
}

// bandIndex returns the index of the band v falls into given ascending
// upper bounds; len(bounds) means above the last bound.
func bandIndex(v float64, bounds []float64) int {
	for i, b := range bounds {
		if v < b {
			return i
		}
	}
	return len(bounds)
}
