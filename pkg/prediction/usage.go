package prediction

import (
	"fmt"
	"math"
	"time"
)

// UsageClassification summarizes how heavily the device is used.
type UsageClassification struct {
	Class            string  `json:"class"`
	AvgDailyLiters   float64 `json:"avg_daily_liters"`
	HeatingCyclesDay float64 `json:"heating_cycles_per_day"`
}

// WeekPartAnalysis compares weekday and weekend consumption.
type WeekPartAnalysis struct {
	WeekdayAvgLiters float64 `json:"weekday_avg_liters"`
	WeekendAvgLiters float64 `json:"weekend_avg_liters"`
	WeekendRatio     float64 `json:"weekend_ratio"`
}

// UsageTrend compares the first and second half of the usage window.
type UsageTrend struct {
	Direction     string  `json:"direction"`
	PercentChange float64 `json:"percent_change"`
}

// ComponentImpact is the projected wear effect on one component.
type ComponentImpact struct {
	WearFactor          float64 `json:"wear_factor"`
	DaysUntilImpact     int     `json:"days_until_impact"`
	EfficiencyImpactPct float64 `json:"efficiency_impact_pct"`
}

// EfficiencyProjection extrapolates efficiency decline.
type EfficiencyProjection struct {
	AnnualDeclinePct float64 `json:"annual_decline_pct"`
	Decline30Days    float64 `json:"decline_30_days"`
	Decline60Days    float64 `json:"decline_60_days"`
	Decline90Days    float64 `json:"decline_90_days"`
}

// UsageDetails is the diagnostic detail block for usage pattern analysis.
type UsageDetails struct {
	Classification              UsageClassification        `json:"classification"`
	WeekParts                   *WeekPartAnalysis          `json:"week_parts,omitempty"`
	Trend                       *UsageTrend                `json:"trend,omitempty"`
	ComponentImpacts            map[string]ComponentImpact `json:"component_impacts"`
	EfficiencyProjection        EfficiencyProjection       `json:"efficiency_projection"`
	OptimizationRecommendations []string                   `json:"optimization_recommendations"`
}

func (UsageDetails) DetailType() PredictionType { return TypeUsagePatterns }

// UsageModel classifies usage intensity and projects component wear
// acceleration. The predicted value is normalized average wear acceleration
// in [0,1]; higher means faster wear (risk framing).
type UsageModel struct {
	cfg UsageConfig
	now func() time.Time
}

// NewUsageModel creates the usage pattern model.
func NewUsageModel(cfg UsageConfig) *UsageModel {
	return &UsageModel{cfg: cfg, now: time.Now}
}

func (m *UsageModel) Type() PredictionType { return TypeUsagePatterns }

func (m *UsageModel) Predict(deviceID string, f Features) *PredictionResult {
	now := m.now()
	cfg := m.cfg
	var used []string

	daily := f.Daily(FeatureDailyUsage)
	cycles := f.Series(FeatureHeatingCycles)
	if len(daily) > 0 {
		used = append(used, FeatureDailyUsage)
	}
	if len(cycles) > 0 {
		used = append(used, FeatureHeatingCycles)
	}

	classification := m.classify(daily, cycles)
	details := &UsageDetails{
		Classification:   classification,
		ComponentImpacts: map[string]ComponentImpact{},
	}

	if len(daily) >= cfg.MinDailyRecords {
		details.WeekParts = analyzeWeekParts(daily)
	}
	if len(daily) >= cfg.MinTrendRecords {
		details.Trend = analyzeHalvesTrend(daily, cfg.TrendStablePct)
	}

	// Temperature multiplier from average target temperature (°F).
	avgTemp, hasTemp := f.FloatOK(FeatureAvgTempSetting)
	if !hasTemp {
		avgTemp, hasTemp = f.FloatOK(FeatureTargetTemperature)
	}
	tempMult := 1.0
	if hasTemp {
		used = append(used, FeatureAvgTempSetting)
		tempMult = cfg.TempMultipliers[bandIndex(avgTemp, cfg.TempBandsF)]
	}

	var wearSum float64
	var wearCount int
	mostImpacted := ""
	worstWear := 0.0
	for comp, byClass := range cfg.BaseWearFactors {
		base, ok := byClass[classification.Class]
		if !ok {
			base = byClass["normal"]
		}
		wear := base * tempMult

		days := cfg.ComponentBaseDays[comp] / wear
		switch classification.Class {
		case "heavy":
			days *= cfg.HeavyDaysPenalty
		case "light":
			days *= cfg.LightDaysBonus
		}

		impact := cfg.ComponentBaseImpact[comp] * math.Max(0, wear-1.0)

		details.ComponentImpacts[comp] = ComponentImpact{
			WearFactor:          roundTo(wear, 3),
			DaysUntilImpact:     int(days),
			EfficiencyImpactPct: roundTo(impact, 2),
		}
		wearSum += wear
		wearCount++
		if wear > worstWear {
			worstWear = wear
			mostImpacted = comp
		}
	}

	avgWear := wearSum / float64(wearCount)
	value := clamp01((avgWear - cfg.WearBaseline) / cfg.WearRange)

	// Efficiency decline projection scaled by device age.
	age := deviceAgeYears(f, now, 5)
	decline := cfg.DeclineRatePctPerYear[classification.Class] *
		cfg.AgeMultipliers[bandIndex(age, cfg.AgeBandsYears)]
	details.EfficiencyProjection = EfficiencyProjection{
		AnnualDeclinePct: roundTo(decline, 2),
		Decline30Days:    roundTo(decline*30/365, 3),
		Decline60Days:    roundTo(decline*60/365, 3),
		Decline90Days:    roundTo(decline*90/365, 3),
	}

	details.OptimizationRecommendations = optimizations(classification.Class)

	conf := 0.4
	if len(daily) >= cfg.MinDailyRecords {
		conf += 0.2
	}
	if len(cycles) >= 3 {
		conf += 0.15
	}
	if hasTemp {
		conf += 0.1
	}
	conf = clamp(conf, 0.3, 0.95)

	actions := m.recommend(deviceID, classification.Class, details, mostImpacted, now)
	sortActions(actions)

	return &PredictionResult{
		PredictionType:     TypeUsagePatterns,
		DeviceID:           deviceID,
		PredictedValue:     value,
		Confidence:         conf,
		FeaturesUsed:       used,
		Timestamp:          now,
		RecommendedActions: actions,
		RawDetails:         details,
	}
}

func (m *UsageModel) classify(daily []DailyValue, cycles []Reading) UsageClassification {
	cfg := m.cfg

	var avgLiters float64
	if len(daily) > 0 {
		var sum float64
		for _, d := range daily {
			sum += d.Value
		}
		avgLiters = sum / float64(len(daily))
	}

	var cyclesPerDay float64
	if len(cycles) > 1 {
		span := cycles[len(cycles)-1].Timestamp.Sub(cycles[0].Timestamp).Hours() / 24
		if span >= 1 {
			cyclesPerDay = float64(len(cycles)) / span
		} else {
			cyclesPerDay = float64(len(cycles))
		}
	}

	class := "normal"
	switch {
	case avgLiters >= cfg.HeavyMinLiters || cyclesPerDay >= cfg.HeavyMinCycles:
		class = "heavy"
	case avgLiters <= cfg.LightMaxLiters && cyclesPerDay <= cfg.LightMaxCycles:
		class = "light"
	}

	return UsageClassification{
		Class:            class,
		AvgDailyLiters:   roundTo(avgLiters, 1),
		HeatingCyclesDay: roundTo(cyclesPerDay, 2),
	}
}

func analyzeWeekParts(daily []DailyValue) *WeekPartAnalysis {
	var wdSum, weSum float64
	var wdN, weN int
	for _, d := range daily {
		switch d.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weSum += d.Value
			weN++
		default:
			wdSum += d.Value
			wdN++
		}
	}
	out := &WeekPartAnalysis{}
	if wdN > 0 {
		out.WeekdayAvgLiters = roundTo(wdSum/float64(wdN), 1)
	}
	if weN > 0 {
		out.WeekendAvgLiters = roundTo(weSum/float64(weN), 1)
	}
	if out.WeekdayAvgLiters > 0 {
		out.WeekendRatio = roundTo(out.WeekendAvgLiters/out.WeekdayAvgLiters, 2)
	}
	return out
}

func analyzeHalvesTrend(daily []DailyValue, stablePct float64) *UsageTrend {
	half := len(daily) / 2
	var firstSum, secondSum float64
	for _, d := range daily[:half] {
		firstSum += d.Value
	}
	for _, d := range daily[half:] {
		secondSum += d.Value
	}
	firstAvg := firstSum / float64(half)
	secondAvg := secondSum / float64(len(daily)-half)
	if firstAvg == 0 {
		return nil
	}
	pct := (secondAvg - firstAvg) / firstAvg * 100
	direction := "stable"
	if pct > stablePct {
		direction = "increasing"
	} else if pct < -stablePct {
		direction = "decreasing"
	}
	return &UsageTrend{Direction: direction, PercentChange: roundTo(pct, 2)}
}

func deviceAgeYears(f Features, now time.Time, def float64) float64 {
	if installed, ok := f.Time(FeatureInstallationDate); ok {
		age := now.Sub(installed).Hours() / 24 / 365.25
		if age >= 0 {
			return age
		}
	}
	return def
}

func optimizations(class string) []string {
	base := []string{
		"Install a monitoring kit to track per-fixture consumption",
		"Keep the regular maintenance schedule to preserve efficiency",
	}
	switch class {
	case "heavy":
		return append([]string{
			"Reduce temperature setpoint by 5° to cut standby losses",
			"Schedule heavy usage (laundry, dishwashing) off peak heating windows",
			"Add tank insulation to reduce reheat frequency",
		}, base...)
	case "light":
		return append([]string{
			"Consider vacation mode during long idle periods",
		}, base...)
	default:
		return append([]string{
			"Reduce temperature setpoint by 5° to cut standby losses",
			"Add tank insulation to reduce reheat frequency",
		}, base...)
	}
}

func (m *UsageModel) recommend(deviceID, class string, details *UsageDetails, mostImpacted string, now time.Time) []RecommendedAction {
	var actions []RecommendedAction

	for comp, impact := range details.ComponentImpacts {
		if impact.WearFactor > 1.1 {
			sev := SeverityLow
			switch {
			case impact.DaysUntilImpact < 90:
				sev = SeverityHigh
			case impact.DaysUntilImpact < 180:
				sev = SeverityMedium
			}
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, comp+"_wear", now),
				Description:     fmt.Sprintf("Monitor %s; wear is accelerated %.0f%% above normal", comp, (impact.WearFactor-1)*100),
				Severity:        sev,
				Impact:          fmt.Sprintf("Accelerated wear shortens %s service interval", comp),
				ExpectedBenefit: "Early intervention before efficiency loss compounds",
				DueDate:         dueIn(now, minInt(impact.DaysUntilImpact, 180)),
			})
		}
		if impact.EfficiencyImpactPct > 10 {
			sev := SeverityMedium
			if impact.EfficiencyImpactPct > 20 {
				sev = SeverityHigh
			}
			c := 150.0
			if comp == "heating_element" || comp == "thermostat" {
				c = 300.0
			}
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, comp+"_service", now),
				Description:     fmt.Sprintf("Service %s; projected efficiency impact of %.1f%%", comp, impact.EfficiencyImpactPct),
				Severity:        sev,
				Impact:          "Efficiency loss raises energy cost every month it persists",
				ExpectedBenefit: "Recovers lost efficiency",
				EstimatedCost:   cost(c),
			})
		}
	}

	if class == "heavy" && mostImpacted != "" {
		if impact := details.ComponentImpacts[mostImpacted]; impact.WearFactor > 1.2 {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, "usage_adjustment", now),
				Description:     fmt.Sprintf("Spread hot water demand across the day to reduce stress on %s", mostImpacted),
				Severity:        SeverityMedium,
				Impact:          "Concentrated heavy draws force long continuous heating runs",
				ExpectedBenefit: "Lower peak wear without reducing total usage",
			})
		}
	}

	if details.EfficiencyProjection.Decline90Days > 5 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "efficiency_service", now),
			Description:     "Schedule an efficiency service; projected 90-day decline exceeds 5%",
			Severity:        SeverityMedium,
			Impact:          "Compounding efficiency decline raises operating cost",
			ExpectedBenefit: "Resets efficiency baseline",
			DueDate:         dueIn(now, 45),
			EstimatedCost:   cost(180),
		})
	}

	if len(actions) == 0 {
		desc := map[string]string{
			"light":  "Usage is light; continue current operation and annual maintenance",
			"normal": "Usage is normal; continue standard maintenance schedule",
			"heavy":  "Usage is heavy; keep a close maintenance schedule and watch efficiency",
		}[class]
		actions = append(actions, monitoringFallback(deviceID, "usage", desc, now))
	}
	return actions
}
