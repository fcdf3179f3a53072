package prediction

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WaterQualityAnalysis scores supply water aggressiveness.
type WaterQualityAnalysis struct {
	HardnessPPM            float64 `json:"hardness_ppm,omitempty"`
	HardnessImpact         float64 `json:"hardness_impact"`
	HardnessClassification string  `json:"hardness_classification"`
	PH                     float64 `json:"ph,omitempty"`
	PHImpact               float64 `json:"ph_impact"`
	TDSPPM                 float64 `json:"tds_ppm,omitempty"`
	TDSImpact              float64 `json:"tds_impact"`
	Score                  float64 `json:"score"`
}

// AmbientAnalysis scores the installation environment.
type AmbientAnalysis struct {
	TemperatureF   float64 `json:"temperature_f,omitempty"`
	TempImpact     float64 `json:"temp_impact"`
	HumidityPct    float64 `json:"humidity_pct,omitempty"`
	HumidityImpact float64 `json:"humidity_impact"`
	Score          float64 `json:"score"`
}

// ComponentInteraction is one degradation propagation between components.
type ComponentInteraction struct {
	Source                string  `json:"source"`
	Target                string  `json:"target"`
	SourceHealth          float64 `json:"source_health"`
	AdditionalDegradation float64 `json:"additional_degradation"`
}

// InteractionAnalysis aggregates cross-component degradation effects.
type InteractionAnalysis struct {
	Interactions []ComponentInteraction `json:"interactions"`
	// PairFactors always includes thermostat_heating_element for downstream
	// consumers regardless of current health.
	PairFactors map[string]float64 `json:"pair_factors"`
	Score       float64            `json:"score"`
}

// MaintenanceItemStatus is the gap status of one maintenance type.
type MaintenanceItemStatus struct {
	Type         string  `json:"type"`
	DaysSince    float64 `json:"days_since"`
	IntervalDays float64 `json:"interval_days"`
	GapRatio     float64 `json:"gap_ratio"`
	Status       string  `json:"status"`
}

// MaintenanceAnalysis scores maintenance recency against expected intervals.
type MaintenanceAnalysis struct {
	DaysSinceLast float64                 `json:"days_since_last,omitempty"`
	Items         []MaintenanceItemStatus `json:"items"`
	OverdueCount  int                     `json:"overdue_count"`
	Score         float64                 `json:"score"`
}

// ScaleBuildupProjection extrapolates mineral scale accumulation.
type ScaleBuildupProjection struct {
	CurrentMM         float64 `json:"current_mm"`
	RateMMPerYear     float64 `json:"rate_mm_per_year"`
	DaysUntilCritical int     `json:"days_until_critical"`
}

// EnvironmentalImpact bundles environment-driven projections for
// downstream consumers; always populated deterministically from whatever
// raw features are available.
type EnvironmentalImpact struct {
	ScaleBuildup ScaleBuildupProjection `json:"scale_buildup"`
	WaterClass   string                 `json:"water_class"`
}

// ProgressionStage is one step of the diagnostic progression ladder.
type ProgressionStage struct {
	Stage       string `json:"stage"`
	Description string `json:"description"`
	Reached     bool   `json:"reached"`
}

// MultiFactorDetails is the diagnostic detail block for multi-factor analysis.
type MultiFactorDetails struct {
	FactorScores             map[string]float64    `json:"factor_scores"`
	CombinedScore            float64               `json:"combined_score"`
	RiskCategory             string                `json:"risk_category"`
	EstimatedMonthsToFailure float64               `json:"estimated_months_to_failure"`
	Summary                  string                `json:"summary"`
	WaterQuality             *WaterQualityAnalysis `json:"water_quality,omitempty"`
	AmbientConditions        *AmbientAnalysis      `json:"ambient_conditions,omitempty"`
	ComponentInteractions    *InteractionAnalysis  `json:"component_interactions,omitempty"`
	MaintenanceStatus        *MaintenanceAnalysis  `json:"maintenance_status,omitempty"`
	EnvironmentalImpact      EnvironmentalImpact   `json:"environmental_impact"`
	DiagnosticProgression    []ProgressionStage    `json:"diagnostic_progression"`
}

func (MultiFactorDetails) DetailType() PredictionType { return TypeMultiFactor }

// MultiFactorModel combines water quality, ambient conditions, component
// interactions, usage, and maintenance history into one weighted risk score.
// The predicted value is the combined score in [0,1]; higher means worse.
type MultiFactorModel struct {
	cfg MultiFactorConfig
	now func() time.Time
}

// NewMultiFactorModel creates the multi-factor analysis model.
func NewMultiFactorModel(cfg MultiFactorConfig) *MultiFactorModel {
	return &MultiFactorModel{cfg: cfg, now: time.Now}
}

func (m *MultiFactorModel) Type() PredictionType { return TypeMultiFactor }

func (m *MultiFactorModel) Predict(deviceID string, f Features) *PredictionResult {
	now := m.now()
	cfg := m.cfg
	var used []string

	details := &MultiFactorDetails{FactorScores: map[string]float64{}}

	if wq := m.analyzeWaterQuality(f, &used); wq != nil {
		details.WaterQuality = wq
		details.FactorScores["water_quality"] = wq.Score
	}
	if amb := m.analyzeAmbient(f, &used); amb != nil {
		details.AmbientConditions = amb
		details.FactorScores["ambient_conditions"] = amb.Score
	}

	health := f.ComponentHealth()
	inter := m.analyzeInteractions(health)
	details.ComponentInteractions = inter
	if len(health) > 0 {
		used = append(used, FeatureComponentHealth)
		details.FactorScores["component_interactions"] = inter.Score
	}

	if score, ok := usageFactorScore(f); ok {
		used = append(used, FeatureUsageIntensity)
		details.FactorScores["usage_patterns"] = score
	}

	if ma := m.analyzeMaintenance(f, now, &used); ma != nil {
		details.MaintenanceStatus = ma
		details.FactorScores["maintenance_history"] = ma.Score
	}

	// Weighted combination renormalized over whichever factors are present.
	var weightedSum, weightSum float64
	for name, score := range details.FactorScores {
		w := cfg.FactorWeights[name]
		weightedSum += score * w
		weightSum += w
	}
	combined := 0.0
	if weightSum > 0 {
		combined = clamp01(weightedSum / weightSum)
	}
	details.CombinedScore = roundTo(combined, 4)

	switch {
	case combined >= cfg.RiskHighThreshold:
		details.RiskCategory = "high"
	case combined >= cfg.RiskMediumThreshold:
		details.RiskCategory = "medium"
	default:
		details.RiskCategory = "low"
	}

	// Months to failure scaled by age and average component health.
	age := deviceAgeYears(f, now, 5)
	ageFactor := cfg.AgeFactors[bandIndex(age, cfg.AgeBandsYears)]
	healthFactor := 1.0
	if len(health) > 0 {
		avg := 0.0
		for _, h := range health {
			avg += h
		}
		avg /= float64(len(health))
		healthFactor = avg * avg
	}
	months := cfg.MonthsToFailureBase * math.Pow(1-combined, cfg.MonthsToFailureExp) * ageFactor * healthFactor
	details.EstimatedMonthsToFailure = roundTo(months, 1)

	details.Summary = m.summarize(details)
	details.EnvironmentalImpact = m.environmentalImpact(f, details.WaterQuality)
	details.DiagnosticProgression = progression(combined)

	conf := clamp(0.35+0.12*float64(len(details.FactorScores)), 0.3, 0.95)

	actions := m.recommend(deviceID, details, now)
	sortActions(actions)

	return &PredictionResult{
		PredictionType:     TypeMultiFactor,
		DeviceID:           deviceID,
		PredictedValue:     combined,
		Confidence:         conf,
		FeaturesUsed:       used,
		Timestamp:          now,
		RecommendedActions: actions,
		RawDetails:         details,
	}
}

func (m *MultiFactorModel) analyzeWaterQuality(f Features, used *[]string) *WaterQualityAnalysis {
	cfg := m.cfg
	out := &WaterQualityAnalysis{}
	var scores, weights []float64
	any := false

	if hardness, ok := f.FloatOK(FeatureWaterHardness); ok {
		any = true
		*used = append(*used, FeatureWaterHardness)
		idx := bandIndex(hardness, cfg.HardnessBandsPPM)
		out.HardnessPPM = hardness
		out.HardnessImpact = cfg.HardnessImpacts[idx]
		out.HardnessClassification = []string{"low", "moderate", "high", "very_high"}[idx]
		scores = append(scores, out.HardnessImpact)
		weights = append(weights, cfg.WaterHardnessWeight)
	}
	if ph, ok := f.FloatOK(FeaturePH); ok {
		any = true
		*used = append(*used, FeaturePH)
		out.PH = ph
		out.PHImpact = clamp01(math.Abs(ph-cfg.PHOptimal) / cfg.PHImpactRange)
		scores = append(scores, out.PHImpact)
		weights = append(weights, cfg.WaterPHWeight)
	}
	if tds, ok := f.FloatOK(FeatureTDS); ok {
		any = true
		*used = append(*used, FeatureTDS)
		out.TDSPPM = tds
		out.TDSImpact = cfg.TDSImpacts[bandIndex(tds, cfg.TDSBandsPPM)]
		scores = append(scores, out.TDSImpact)
		weights = append(weights, cfg.WaterTDSWeight)
	}
	if !any {
		return nil
	}
	out.Score = roundTo(weightedMean(scores, weights), 4)
	return out
}

func (m *MultiFactorModel) analyzeAmbient(f Features, used *[]string) *AmbientAnalysis {
	cfg := m.cfg
	out := &AmbientAnalysis{}
	var scores, weights []float64
	any := false

	if temp, ok := f.FloatOK(FeatureAmbientTemp); ok {
		any = true
		*used = append(*used, FeatureAmbientTemp)
		out.TemperatureF = temp
		dist := 0.0
		if temp < cfg.AmbientTempMinF {
			dist = cfg.AmbientTempMinF - temp
		} else if temp > cfg.AmbientTempMaxF {
			dist = temp - cfg.AmbientTempMaxF
		}
		out.TempImpact = clamp01(dist / cfg.AmbientTempRange)
		scores = append(scores, out.TempImpact)
		weights = append(weights, cfg.AmbientTempWeight)
	}
	if hum, ok := f.FloatOK(FeatureAmbientHumidity); ok {
		any = true
		*used = append(*used, FeatureAmbientHumidity)
		out.HumidityPct = hum
		dist := 0.0
		if hum < cfg.HumidityMinPct {
			dist = cfg.HumidityMinPct - hum
		} else if hum > cfg.HumidityMaxPct {
			dist = hum - cfg.HumidityMaxPct
		}
		out.HumidityImpact = clamp01(dist / cfg.HumidityRange)
		scores = append(scores, out.HumidityImpact)
		weights = append(weights, cfg.AmbientHumidWeight)
	}
	if !any {
		return nil
	}
	out.Score = roundTo(weightedMean(scores, weights), 4)
	return out
}

// analyzeInteractions propagates additional degradation from every component
// below the health threshold to its interacting components via the fixed
// cross-impact matrix.
func (m *MultiFactorModel) analyzeInteractions(health map[string]float64) *InteractionAnalysis {
	cfg := m.cfg
	out := &InteractionAnalysis{
		PairFactors: map[string]float64{
			"thermostat_heating_element": cfg.InteractionMatrix["thermostat"]["heating_element"],
		},
	}

	var total float64
	for source, targets := range cfg.InteractionMatrix {
		h, ok := health[source]
		if !ok || h >= cfg.InteractionHealthThreshold {
			continue
		}
		deficit := cfg.InteractionHealthThreshold - h
		for target, factor := range targets {
			additional := deficit * factor
			out.Interactions = append(out.Interactions, ComponentInteraction{
				Source:                source,
				Target:                target,
				SourceHealth:          h,
				AdditionalDegradation: roundTo(additional, 4),
			})
			total += additional
		}
	}
	sort.Slice(out.Interactions, func(i, j int) bool {
		return out.Interactions[i].AdditionalDegradation > out.Interactions[j].AdditionalDegradation
	})
	out.Score = clamp01(total)
	return out
}

func usageFactorScore(f Features) (float64, bool) {
	if intensity, ok := f.String(FeatureUsageIntensity); ok {
		switch intensity {
		case "light":
			return 0.2, true
		case "heavy":
			return 0.8, true
		default:
			return 0.45, true
		}
	}
	return 0, false
}

func (m *MultiFactorModel) analyzeMaintenance(f Features, now time.Time, used *[]string) *MaintenanceAnalysis {
	cfg := m.cfg
	if !f.Has(FeatureMaintenanceHistory) {
		return nil
	}
	*used = append(*used, FeatureMaintenanceHistory)
	maint := f.Maintenance()

	out := &MaintenanceAnalysis{}
	lastByType := map[string]time.Time{}
	var lastOverall time.Time
	for _, ev := range maint {
		if ev.Date.After(lastByType[ev.Type]) {
			lastByType[ev.Type] = ev.Date
		}
		if ev.Date.After(lastOverall) {
			lastOverall = ev.Date
		}
	}
	if !lastOverall.IsZero() {
		out.DaysSinceLast = roundTo(now.Sub(lastOverall).Hours()/24, 1)
	}

	// Unmaintained expected types count from installation (or one default
	// interval past due when installation is unknown).
	installDate, hasInstall := f.Time(FeatureInstallationDate)

	var types []string
	for typ := range cfg.MaintenanceIntervalsDays {
		types = append(types, typ)
	}
	sort.Strings(types)

	var gapSum float64
	for _, typ := range types {
		interval := cfg.MaintenanceIntervalsDays[typ]
		var daysSince float64
		if last, ok := lastByType[typ]; ok {
			daysSince = now.Sub(last).Hours() / 24
		} else if hasInstall {
			daysSince = now.Sub(installDate).Hours() / 24
		} else {
			daysSince = interval * (cfg.GapOverdueRatio + 0.1)
		}
		ratio := daysSince / interval
		status := "ok"
		if ratio > cfg.GapOverdueRatio {
			status = "overdue"
			out.OverdueCount++
		} else if ratio > cfg.GapDueSoonRatio {
			status = "due_soon"
		}
		out.Items = append(out.Items, MaintenanceItemStatus{
			Type:         typ,
			DaysSince:    roundTo(daysSince, 1),
			IntervalDays: interval,
			GapRatio:     roundTo(ratio, 3),
			Status:       status,
		})
		gapSum += math.Min(ratio, 2)
	}

	// Average capped gap ratio mapped onto [0,1]: ratio 1 (exactly on
	// schedule boundary) scores 0.5.
	out.Score = roundTo(clamp01(gapSum/float64(len(types))/2), 4)
	return out
}

func (m *MultiFactorModel) summarize(d *MultiFactorDetails) string {
	type namedScore struct {
		name  string
		score float64
	}
	var top []namedScore
	for name, score := range d.FactorScores {
		top = append(top, namedScore{name, score})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].score != top[j].score {
			return top[i].score > top[j].score
		}
		return top[i].name < top[j].name
	})

	var drivers []string
	for i, ns := range top {
		if i >= 2 {
			break
		}
		drivers = append(drivers, strings.ReplaceAll(ns.name, "_", " "))
	}
	driverText := "insufficient data"
	if len(drivers) > 0 {
		driverText = strings.Join(drivers, " and ")
	}
	return fmt.Sprintf("Overall risk is %s (score %.2f), driven primarily by %s; estimated %.0f months to failure without intervention.",
		d.RiskCategory, d.CombinedScore, driverText, d.EstimatedMonthsToFailure)
}

// environmentalImpact projects scale buildup deterministically from hardness
// class, average temperature setting, and current measured scale.
func (m *MultiFactorModel) environmentalImpact(f Features, wq *WaterQualityAnalysis) EnvironmentalImpact {
	cfg := m.cfg

	class := "moderate"
	if wq != nil && wq.HardnessClassification != "" {
		class = wq.HardnessClassification
	}
	rate, ok := cfg.ScaleRatesMMPerYear[class]
	if !ok {
		rate = cfg.ScaleRatesMMPerYear["moderate"]
	}

	tempMult := 1.0
	if avgTemp, ok := f.FloatOK(FeatureAvgTempSetting); ok {
		tempMult = cfg.ScaleTempMults[bandIndex(avgTemp, cfg.ScaleTempBandsF)]
	}
	rate *= tempMult

	current := f.Float(FeatureScaleBuildupMM, 0)
	days := 9999
	if rate > 0 {
		remaining := cfg.ScaleCriticalMM - current
		if remaining <= 0 {
			days = 0
		} else {
			days = int(remaining / (rate / 365))
			if days > 9999 {
				days = 9999
			}
		}
	}

	return EnvironmentalImpact{
		ScaleBuildup: ScaleBuildupProjection{
			CurrentMM:         current,
			RateMMPerYear:     roundTo(rate, 3),
			DaysUntilCritical: days,
		},
		WaterClass: class,
	}
}

func progression(score float64) []ProgressionStage {
	stages := []struct {
		at          float64
		stage, desc string
	}{
		{0.0, "baseline", "normal operation, routine monitoring"},
		{0.25, "early_wear", "first measurable efficiency and wear effects"},
		{0.45, "accelerated_degradation", "compounding degradation across components"},
		{0.7, "pre_failure", "failure likely without intervention"},
		{0.9, "imminent_failure", "immediate professional service required"},
	}
	out := make([]ProgressionStage, len(stages))
	for i, s := range stages {
		out[i] = ProgressionStage{Stage: s.stage, Description: s.desc, Reached: score >= s.at}
	}
	return out
}

func (m *MultiFactorModel) recommend(deviceID string, d *MultiFactorDetails, now time.Time) []RecommendedAction {
	var actions []RecommendedAction

	if d.WaterQuality != nil && d.WaterQuality.HardnessImpact > 0.6 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "water_softener", now),
			Description:     "Install a water softener to reduce supply hardness",
			Severity:        SeverityMedium,
			Impact:          "Hard water drives scale accumulation and element wear",
			ExpectedBenefit: "Reduces the dominant water quality risk factor",
			EstimatedCost:   cost(800),
		})
	}

	if d.ComponentInteractions != nil {
		remediated := map[string]bool{}
		for _, it := range d.ComponentInteractions.Interactions {
			if it.AdditionalDegradation <= 0.3 || remediated[it.Source] {
				continue
			}
			remediated[it.Source] = true
			sev := SeverityMedium
			if it.AdditionalDegradation > 0.5 {
				sev = SeverityHigh
			}
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, it.Source+"_interaction", now),
				Description:     fmt.Sprintf("Service %s; its degradation is accelerating wear on %s", it.Source, it.Target),
				Severity:        sev,
				Impact:          fmt.Sprintf("Cross-component degradation of %.0f%% propagating to %s", it.AdditionalDegradation*100, it.Target),
				ExpectedBenefit: "Stops secondary degradation at the source",
				DueDate:         dueIn(now, 30),
			})
		}
	}

	if d.MaintenanceStatus != nil {
		for _, item := range d.MaintenanceStatus.Items {
			if item.Status != "overdue" {
				continue
			}
			sev := SeverityMedium
			if item.GapRatio > 2 {
				sev = SeverityHigh
			}
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, item.Type, now),
				Description:     fmt.Sprintf("Perform overdue %s (%.0f days since last, expected every %.0f)", strings.ReplaceAll(item.Type, "_", " "), item.DaysSince, item.IntervalDays),
				Severity:        sev,
				Impact:          "Overdue maintenance compounds wear and voids early warning",
				ExpectedBenefit: "Returns the component to its inspection schedule",
				DueDate:         dueIn(now, 30),
			})
		}
	}

	if d.RiskCategory == "high" && d.EstimatedMonthsToFailure < 6 {
		actions = append(actions, RecommendedAction{
			ActionID:          actionID(deviceID, "comprehensive_evaluation", now),
			Description:       "Schedule a comprehensive professional evaluation; combined risk is high with failure projected within 6 months",
			Severity:          SeverityCritical,
			Impact:            "Multiple compounding factors indicate near-term failure",
			ExpectedBenefit:   "Full assessment and prioritized remediation plan",
			DueDate:           dueIn(now, 14),
			EstimatedCost:     cost(250),
			EstimatedDuration: "2-3 hours",
		})
	}

	if len(actions) == 0 {
		actions = append(actions, monitoringFallback(deviceID, "multi_factor",
			"Combined risk is low; continue normal monitoring and maintenance", now))
	}
	return actions
}

func weightedMean(scores, weights []float64) float64 {
	var sum, wsum float64
	for i := range scores {
		sum += scores[i] * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}
