package prediction

import (
	"math"
	"time"
)

// EfficiencyMetrics summarizes efficiency-related telemetry trends.
type EfficiencyMetrics struct {
	Trend                string  `json:"trend"`
	DegradationPctPer30D float64 `json:"degradation_pct_per_30d"`
	FlowRateChangePct    float64 `json:"flow_rate_change_pct"`
	HeatingCycleChangePct float64 `json:"heating_cycle_change_pct"`
}

// DescalingDetails is the diagnostic detail block for descaling need.
type DescalingDetails struct {
	DaysSinceDescaling float64           `json:"days_since_descaling"`
	ScaleThicknessMM   float64           `json:"scale_thickness_mm"`
	Efficiency         EfficiencyMetrics `json:"efficiency_metrics"`
	ThicknessFactor    float64           `json:"thickness_factor"`
	TimeFactor         float64           `json:"time_factor"`
	EfficiencyFactor   float64           `json:"efficiency_factor"`
	WaterHardnessPPM   float64           `json:"water_hardness_ppm,omitempty"`
}

func (DescalingDetails) DetailType() PredictionType { return TypeDescaling }

// DescalingModel estimates the probability that descaling is needed from
// estimated scale thickness, time since the last descaling, and efficiency
// degradation. The predicted value is that probability in [0,1].
type DescalingModel struct {
	cfg DescalingConfig
	now func() time.Time
}

// NewDescalingModel creates the descaling requirement model.
func NewDescalingModel(cfg DescalingConfig) *DescalingModel {
	return &DescalingModel{cfg: cfg, now: time.Now}
}

func (m *DescalingModel) Type() PredictionType { return TypeDescaling }

func (m *DescalingModel) Predict(deviceID string, f Features) *PredictionResult {
	now := m.now()
	cfg := m.cfg
	var used []string

	// Days since last descaling, falling back to installation, then default.
	days := cfg.DefaultDaysSince
	maint := f.Maintenance()
	if f.Has(FeatureMaintenanceHistory) {
		used = append(used, FeatureMaintenanceHistory)
	}
	if last, ok := lastEventOfType(maint, "descaling"); ok {
		days = now.Sub(last).Hours() / 24
	} else if last, ok := lastEventOfType(maint, "installation"); ok {
		days = now.Sub(last).Hours() / 24
	} else if installed, ok := f.Time(FeatureInstallationDate); ok {
		days = now.Sub(installed).Hours() / 24
		used = append(used, FeatureInstallationDate)
	}
	if days < 0 {
		days = 0
	}

	// Efficiency metrics from telemetry.
	eff := EfficiencyMetrics{Trend: "unknown"}
	effSeries := f.Series(FeatureEfficiency)
	if len(effSeries) >= 3 {
		used = append(used, FeatureEfficiency)
		eff.Trend, eff.DegradationPctPer30D = degradationPer30Days(effSeries)
	}
	flowSeries := f.Series(FeatureFlowRate)
	if len(flowSeries) >= 3 {
		used = append(used, FeatureFlowRate)
		_, drop := degradationPer30Days(flowSeries)
		eff.FlowRateChangePct = -drop
	}
	cycleSeries := f.Series(FeatureHeatingCycles)
	if len(cycleSeries) >= 3 {
		used = append(used, FeatureHeatingCycles)
		// Longer cycles mean more scale; degradationPer30Days reports a
		// decline as positive, so invert.
		_, change := degradationPer30Days(cycleSeries)
		eff.HeatingCycleChangePct = -change
	}

	// Scale thickness estimate.
	hardness, hasHardness := f.FloatOK(FeatureWaterHardness)
	if hasHardness {
		used = append(used, FeatureWaterHardness)
	} else {
		hardness = 100 // moderate default
	}
	hardnessFactor := cfg.HardnessFactors[bandIndex(hardness, cfg.HardnessBandsPPM)]

	base := (days / 365) * hardnessFactor * cfg.MMPerYearCeiling
	degFactor := 1.0 +
		cfg.EffDegradationWeight*math.Max(0, eff.DegradationPctPer30D) +
		cfg.FlowChangeWeight*math.Max(0, -eff.FlowRateChangePct) +
		cfg.CycleChangeWeight*math.Max(0, eff.HeatingCycleChangePct)
	thickness := math.Min(cfg.MaxThicknessMM, base*degFactor)

	thicknessFactor := math.Min(1, thickness/cfg.ThicknessNormMM)
	timeFactor := math.Min(1, days/cfg.TimeNormDays)
	effFactor := math.Min(1, math.Max(0, eff.DegradationPctPer30D)/cfg.EffNormPctPer30D)

	probability := clamp01(cfg.ThicknessWeight*thicknessFactor +
		cfg.TimeWeight*timeFactor +
		cfg.EfficiencyWeight*effFactor)

	details := &DescalingDetails{
		DaysSinceDescaling: roundTo(days, 1),
		ScaleThicknessMM:   roundTo(thickness, 2),
		Efficiency:         eff,
		ThicknessFactor:    roundTo(thicknessFactor, 3),
		TimeFactor:         roundTo(timeFactor, 3),
		EfficiencyFactor:   roundTo(effFactor, 3),
	}
	if hasHardness {
		details.WaterHardnessPPM = hardness
	}

	conf := m.confidence(f, effSeries, maint)

	result := &PredictionResult{
		PredictionType: TypeDescaling,
		DeviceID:       deviceID,
		PredictedValue: probability,
		Confidence:     conf,
		FeaturesUsed:   used,
		Timestamp:      now,
		RawDetails:     details,
	}
	result.RecommendedActions = m.RecommendActions(result)
	return result
}

// confidence scales with telemetry volume, data span, feature completeness,
// and maintenance history presence.
func (m *DescalingModel) confidence(f Features, effSeries []Reading, maint []MaintenanceEvent) float64 {
	cfg := m.cfg
	conf := 0.45

	points := len(effSeries) + len(f.Series(FeatureFlowRate)) + len(f.Series(FeatureEnergyUsage))
	if points >= 60 {
		conf += 0.15
	} else if points < 10 {
		conf -= 0.15
	}

	if len(effSeries) >= 2 {
		span := effSeries[len(effSeries)-1].Timestamp.Sub(effSeries[0].Timestamp).Hours() / 24
		if span >= 90 {
			conf += 0.1
		} else if span < 7 {
			conf -= 0.1
		}
	}

	for _, key := range []string{FeatureEfficiency, FeatureEnergyUsage, FeatureFlowRate, FeatureWaterHardness} {
		if f.Has(key) {
			conf += 0.05
		}
	}
	if len(maint) > 0 {
		conf += 0.05
	}

	return clamp(conf, cfg.ConfidenceFloor, cfg.ConfidenceCap)
}

// RecommendActions derives recommended actions from a descaling prediction.
// It applies the same thresholds as Predict, so post-processing an existing
// result is consistent with the model's own output.
func (m *DescalingModel) RecommendActions(result *PredictionResult) []RecommendedAction {
	cfg := m.cfg
	now := result.Timestamp
	if now.IsZero() {
		now = m.now()
	}
	deviceID := result.DeviceID
	probability := result.PredictedValue

	var days, hardness float64
	if d, ok := result.RawDetails.(*DescalingDetails); ok {
		days = d.DaysSinceDescaling
		hardness = d.WaterHardnessPPM
	}

	var actions []RecommendedAction
	var severity Severity

	switch {
	case probability >= cfg.TierHigh:
		severity = SeverityHigh
		actions = append(actions, RecommendedAction{
			ActionID:          actionID(deviceID, "descale", now),
			Description:       "Descale the water heater as soon as possible; scale buildup is severe",
			Severity:          SeverityHigh,
			Impact:            "Severe scale insulates the element, raising energy use and risking burnout",
			ExpectedBenefit:   "Restores heating efficiency and element life",
			DueDate:           dueIn(now, 14),
			EstimatedCost:     cost(200),
			EstimatedDuration: "2-3 hours",
		})
	case probability >= cfg.TierMedium:
		severity = SeverityMedium
		actions = append(actions, RecommendedAction{
			ActionID:          actionID(deviceID, "descale", now),
			Description:       "Schedule descaling within the next month",
			Severity:          SeverityMedium,
			Impact:            "Accumulating scale is beginning to reduce efficiency",
			ExpectedBenefit:   "Prevents efficiency loss from compounding",
			DueDate:           dueIn(now, 30),
			EstimatedCost:     cost(180),
			EstimatedDuration: "2 hours",
		})
	case probability >= cfg.TierLow:
		severity = SeverityLow
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "descale", now),
			Description:     "Plan descaling within the next quarter",
			Severity:        SeverityLow,
			Impact:          "Scale levels are moderate but rising",
			ExpectedBenefit: "Keeps scale below the efficiency-impact threshold",
			DueDate:         dueIn(now, 90),
		})
	default:
		if days > cfg.ReminderMinDays && hardness > cfg.ReminderMinHardness {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, "descale_inspection", now),
				Description:     "Inspect for scale at next service; long interval since last descaling in hard water",
				Severity:        SeverityLow,
				Impact:          "Hard water accumulates scale even when telemetry looks stable",
				ExpectedBenefit: "Confirms actual scale state",
			})
		}
	}

	if hardness > cfg.TreatmentHardness && (severity == SeverityHigh || severity == SeverityMedium) {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "water_treatment", now),
			Description:     "Add water treatment; supply hardness is driving rapid scale formation",
			Severity:        SeverityMedium,
			Impact:          "Without treatment, descaling intervals keep shrinking",
			ExpectedBenefit: "Lengthens the interval between descaling services",
			EstimatedCost:   cost(400),
		})
	}
	if severity == SeverityHigh {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "element_inspection", now),
			Description:     "Inspect the heating element after descaling for scale damage",
			Severity:        SeverityMedium,
			Impact:          "Severe scale may have already damaged the element surface",
			ExpectedBenefit: "Catches element damage while the tank is drained",
		})
	}

	if len(actions) == 0 {
		actions = append(actions, monitoringFallback(deviceID, "descaling",
			"No descaling needed; continue monitoring efficiency trends", now))
	}
	sortActions(actions)
	return actions
}

// degradationPer30Days reports the trend direction and the percent decline
// between the first-three and last-three averages, normalized to a 30-day
// rate. A positive value means decline.
func degradationPer30Days(pts []Reading) (string, float64) {
	firstAvg := mean(seriesValues(pts[:3]))
	lastAvg := mean(seriesValues(pts[len(pts)-3:]))
	if firstAvg == 0 {
		return "unknown", 0
	}
	span := pts[len(pts)-1].Timestamp.Sub(pts[0].Timestamp).Hours() / 24
	if span < 1 {
		span = 1
	}
	pct := (firstAvg - lastAvg) / firstAvg * 100
	per30 := pct * 30 / span

	trend := "stable"
	if per30 > 0.5 {
		trend = "degrading"
	} else if per30 < -0.5 {
		trend = "improving"
	}
	return trend, roundTo(per30, 3)
}

func lastEventOfType(maint []MaintenanceEvent, typ string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, ev := range maint {
		if ev.Type == typ && ev.Date.After(last) {
			last = ev.Date
			found = true
		}
	}
	return last, found
}
