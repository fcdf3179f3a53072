package prediction

import (
	"fmt"
	"strings"
	"time"
)

// LifespanDetails is the diagnostic detail block for lifespan estimation.
type LifespanDetails struct {
	CurrentAgeYears      float64  `json:"current_age_years"`
	TotalLifespanYears   float64  `json:"estimated_total_lifespan_years"`
	RemainingYears       float64  `json:"remaining_years"`
	RemainingPercentage  float64  `json:"remaining_percentage"`
	ComponentHealthScore float64  `json:"component_health_score,omitempty"`
	ContributingFactors  []string `json:"contributing_factors"`
	DataQuality          string   `json:"data_quality"`
}

func (LifespanDetails) DetailType() PredictionType { return TypeLifespan }

// LifespanModel estimates the fraction of expected lifespan remaining.
// The predicted value is in [0.05, 1.0]; the 5% floor keeps the estimate
// from ever reporting a device as exactly exhausted.
type LifespanModel struct {
	cfg LifespanConfig
	now func() time.Time
}

// NewLifespanModel creates the lifespan estimation model.
func NewLifespanModel(cfg LifespanConfig) *LifespanModel {
	return &LifespanModel{cfg: cfg, now: time.Now}
}

func (m *LifespanModel) Type() PredictionType { return TypeLifespan }

// Predict estimates remaining lifespan from installation age, water quality,
// temperature setpoint, usage intensity, maintenance frequency, and
// component health.
func (m *LifespanModel) Predict(deviceID string, f Features) *PredictionResult {
	now := m.now()
	cfg := m.cfg
	var used []string
	var factors []string

	// Current age in years: installation date, operation hours, or default.
	age := cfg.DefaultAgeYears
	ageKnown := false
	if installed, ok := f.Time(FeatureInstallationDate); ok {
		age = now.Sub(installed).Hours() / 24 / 365.25
		if age < 0 {
			age = 0
		}
		ageKnown = true
		used = append(used, FeatureInstallationDate)
	} else if hours, ok := f.FloatOK(FeatureOperationHours); ok {
		age = hours / cfg.OperationHoursPerYear
		used = append(used, FeatureOperationHours)
	}
	factors = append(factors, ageBracket(age))

	total := cfg.BaseLifespanYears

	// Water hardness.
	if hardness, ok := f.FloatOK(FeatureWaterHardness); ok {
		used = append(used, FeatureWaterHardness)
		switch bandIndex(hardness, []float64{cfg.HardnessSoftPPM, cfg.HardnessModeratePPM, cfg.HardnessHardPPM}) {
		case 0:
			total *= cfg.FactorSoftWater
			factors = append(factors, "soft water extends expected lifespan")
		case 1:
			total *= cfg.FactorModerateWater
			factors = append(factors, "moderate water hardness")
		case 2:
			total *= cfg.FactorHardWater
			factors = append(factors, "hard water accelerates scale buildup")
		default:
			total *= cfg.FactorVeryHardWater
			factors = append(factors, "very hard water significantly accelerates scale buildup")
		}
	}

	// Temperature setpoint.
	if temp, ok := f.temperatureSetting(); ok {
		used = append(used, FeatureTempSettings)
		switch {
		case temp < cfg.TempLowMaxC:
			total *= cfg.FactorLowTemp
			factors = append(factors, "low temperature setting reduces thermal stress")
		case temp > cfg.TempHighMinC:
			total *= cfg.FactorHighTemp
			factors = append(factors, "high temperature setting increases thermal stress")
		default:
			factors = append(factors, "moderate temperature setting")
		}
	}

	// Usage intensity, when provided.
	if intensity, ok := f.String(FeatureUsageIntensity); ok {
		used = append(used, FeatureUsageIntensity)
		switch intensity {
		case "light":
			total *= cfg.FactorLightUsage
			factors = append(factors, "light usage pattern")
		case "heavy":
			total *= cfg.FactorHeavyUsage
			factors = append(factors, "heavy usage pattern")
		default:
			factors = append(factors, "normal usage pattern")
		}
	}

	// Maintenance frequency relative to one expected event per year.
	maint := f.Maintenance()
	var lastMaint time.Time
	if f.Has(FeatureMaintenanceHistory) {
		used = append(used, FeatureMaintenanceHistory)
		expected := age
		if expected < 1 {
			expected = 1
		}
		ratio := float64(len(maint)) / expected
		switch {
		case ratio >= cfg.MaintRegularRatio:
			total *= cfg.FactorMaintRegular
			factors = append(factors, "regular maintenance history")
		case ratio >= cfg.MaintOccasionalRatio:
			factors = append(factors, "occasional maintenance history")
		default:
			total *= cfg.FactorMaintNeglected
			factors = append(factors, "maintenance appears neglected")
		}
		for _, ev := range maint {
			if ev.Date.After(lastMaint) {
				lastMaint = ev.Date
			}
			lower := strings.ToLower(ev.Findings)
			if strings.Contains(lower, "corrosion") {
				factors = append(factors, "corrosion noted in maintenance findings")
			}
			if strings.Contains(lower, "leak") {
				factors = append(factors, "leak noted in maintenance findings")
			}
		}
	}

	// Component health weighted average.
	health := f.ComponentHealth()
	healthScore := 0.0
	if len(health) > 0 {
		used = append(used, FeatureComponentHealth)
		healthScore = m.weightedHealth(health)
		if healthScore < cfg.HealthScaleThreshold {
			scale := healthScore
			if scale < cfg.HealthScaleFloor {
				scale = cfg.HealthScaleFloor
			}
			total *= scale
		}
		for comp, h := range health {
			if h < 0.6 {
				factors = append(factors, fmt.Sprintf("%s degraded (%.0f%% health)", comp, h*100))
			}
		}
		if h, ok := health["anode_rod"]; ok && h < 0.5 && !hasMaintenanceType(maint, "anode_rod_replacement") {
			factors = append(factors, "anode rod degraded with no replacement on record")
		}
	}

	remainingYears := total - age
	if remainingYears < 0 {
		remainingYears = 0
	}
	remaining := clamp(remainingYears/total, cfg.MinRemaining, 1.0)

	// Confidence from feature completeness plus bonuses.
	conf, quality := m.confidence(f, health, maint, ageKnown)
	if quality == "limited" {
		factors = append(factors, "limited input data reduces estimate reliability")
	}

	details := &LifespanDetails{
		CurrentAgeYears:      roundTo(age, 2),
		TotalLifespanYears:   roundTo(total, 2),
		RemainingYears:       roundTo(remainingYears, 2),
		RemainingPercentage:  roundTo(remaining, 4),
		ComponentHealthScore: roundTo(healthScore, 3),
		ContributingFactors:  factors,
		DataQuality:          quality,
	}

	actions := m.recommend(deviceID, f, remaining, health, maint, lastMaint, age, quality, now)
	sortActions(actions)

	return &PredictionResult{
		PredictionType:     TypeLifespan,
		DeviceID:           deviceID,
		PredictedValue:     remaining,
		Confidence:         conf,
		FeaturesUsed:       used,
		Timestamp:          now,
		RecommendedActions: actions,
		RawDetails:         details,
	}
}

func (m *LifespanModel) weightedHealth(health map[string]float64) float64 {
	var sum, weightSum float64
	for comp, h := range health {
		w, ok := m.cfg.ComponentWeights[comp]
		if !ok {
			w = m.cfg.UnknownComponentWeight
		}
		sum += h * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

var lifespanKeyFields = []string{
	FeatureInstallationDate,
	FeatureOperationHours,
	FeatureWaterHardness,
	FeatureTempSettings,
	FeatureUsageIntensity,
	FeatureComponentHealth,
	FeatureMaintenanceHistory,
}

func (m *LifespanModel) confidence(f Features, health map[string]float64, maint []MaintenanceEvent, ageKnown bool) (float64, string) {
	present := 0
	for _, key := range lifespanKeyFields {
		if f.Has(key) || (key == FeatureTempSettings && f.Has(FeatureTargetTemperature)) {
			present++
		}
	}

	conf := m.cfg.ConfidenceFloor + 0.06*float64(present)

	// Bonus for component health coverage across the five tracked components.
	known := 0
	for comp := range m.cfg.ComponentWeights {
		if _, ok := health[comp]; ok {
			known++
		}
	}
	conf += 0.01 * float64(known)

	// Bonus for maintenance record depth.
	bonus := 0.01 * float64(len(maint))
	if bonus > 0.05 {
		bonus = 0.05
	}
	conf += bonus

	if ageKnown {
		conf += 0.05
	}

	quality := "adequate"
	if present < 4 {
		quality = "limited"
	}
	return clamp(conf, m.cfg.ConfidenceFloor, m.cfg.ConfidenceCap), quality
}

func (m *LifespanModel) recommend(deviceID string, f Features, remaining float64, health map[string]float64, maint []MaintenanceEvent, lastMaint time.Time, age float64, quality string, now time.Time) []RecommendedAction {
	var actions []RecommendedAction

	if remaining < 0.2 {
		actions = append(actions, RecommendedAction{
			ActionID:          actionID(deviceID, "replacement_plan", now),
			Description:       "Plan full water heater replacement; unit is near end of expected lifespan",
			Severity:          SeverityHigh,
			Impact:            "Unplanned failure risk including water damage and loss of hot water",
			ExpectedBenefit:   "Controlled replacement avoids emergency costs",
			DueDate:           dueIn(now, 180),
			EstimatedCost:     cost(1200),
			EstimatedDuration: "1 day",
		})
	} else if remaining < 0.3 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "replacement_budget", now),
			Description:     "Begin budgeting for water heater replacement within the next two years",
			Severity:        SeverityMedium,
			Impact:          "Replacement cost arrives unplanned",
			ExpectedBenefit: "Spread replacement cost over time",
		})
	}

	type componentRule struct {
		component   string
		urgentBelow float64
		checkBelow  float64
		urgentSev   Severity
		urgentDesc  string
		checkDesc   string
		urgentDays  int
		urgentCost  float64
	}
	rules := []componentRule{
		{"anode_rod", 0.3, 0.5, SeverityHigh,
			"Replace anode rod urgently; sacrificial protection is nearly exhausted",
			"Inspect anode rod at next service visit", 30, 150},
		{"heating_element", 0.4, 0.6, SeverityHigh,
			"Replace heating element; efficiency and heating capacity are degraded",
			"Inspect heating element for scale and wear", 30, 250},
		{"pressure_relief_valve", 0.5, 0, SeverityCritical,
			"Replace pressure relief valve; a failed valve is a safety hazard",
			"", 14, 80},
		{"tank_integrity", 0.4, 0, SeverityCritical,
			"Professional tank integrity inspection required immediately",
			"", 7, 200},
	}
	for _, r := range rules {
		h, ok := health[r.component]
		if !ok {
			continue
		}
		if h < r.urgentBelow {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, r.component, now),
				Description:     r.urgentDesc,
				Severity:        r.urgentSev,
				Impact:          fmt.Sprintf("Continued degradation of %s risks secondary damage", r.component),
				ExpectedBenefit: "Restores component protection and extends tank life",
				DueDate:         dueIn(now, r.urgentDays),
				EstimatedCost:   cost(r.urgentCost),
			})
		} else if r.checkBelow > 0 && h < r.checkBelow {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, r.component+"_inspect", now),
				Description:     r.checkDesc,
				Severity:        SeverityMedium,
				Impact:          fmt.Sprintf("%s may degrade further without inspection", r.component),
				ExpectedBenefit: "Catches wear before replacement becomes urgent",
				DueDate:         dueIn(now, 90),
			})
		}
	}

	if hardness, ok := f.FloatOK(FeatureWaterHardness); ok {
		if hardness > m.cfg.HardnessHardPPM {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, "water_softener", now),
				Description:     "Install a water softener; supply water is very hard",
				Severity:        SeverityMedium,
				Impact:          "Rapid scale accumulation shortens tank and element life",
				ExpectedBenefit: "Slows scale buildup across the whole system",
				EstimatedCost:   cost(800),
			})
		} else if hardness > m.cfg.HardnessModeratePPM {
			actions = append(actions, RecommendedAction{
				ActionID:        actionID(deviceID, "descaling_schedule", now),
				Description:     "Increase descaling frequency for hard water conditions",
				Severity:        SeverityLow,
				Impact:          "Scale accumulates faster than the standard schedule assumes",
				ExpectedBenefit: "Maintains efficiency between services",
			})
		}
	}

	if temp, ok := f.temperatureSetting(); ok && temp > 65 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "lower_temperature", now),
			Description:     "Lower temperature setpoint below 65°C to reduce thermal stress",
			Severity:        SeverityLow,
			Impact:          "Sustained high temperatures accelerate component wear",
			ExpectedBenefit: "Extends lifespan and reduces energy use",
		})
	}

	if age > 8 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "professional_inspection", now),
			Description:     "Schedule professional inspection; unit is beyond 8 years of service",
			Severity:        SeverityMedium,
			Impact:          "Age-related faults can develop between routine checks",
			ExpectedBenefit: "Professional assessment of true remaining life",
			DueDate:         dueIn(now, 60),
			EstimatedCost:   cost(120),
		})
	}

	if !lastMaint.IsZero() && now.Sub(lastMaint) > 365*24*time.Hour {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "annual_maintenance", now),
			Description:     "Perform annual maintenance; more than a year since last service",
			Severity:        SeverityMedium,
			Impact:          "Skipped maintenance compounds wear on all components",
			ExpectedBenefit: "Restores the regular maintenance lifespan bonus",
			DueDate:         dueIn(now, 30),
		})
	}

	if quality == "limited" {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "data_quality", now),
			Description:     "Record installation date, water hardness, and maintenance history to improve estimates",
			Severity:        SeverityLow,
			Impact:          "Sparse data widens the uncertainty of lifespan estimates",
			ExpectedBenefit: "Higher confidence predictions",
		})
	}

	if len(actions) == 0 {
		actions = append(actions, monitoringFallback(deviceID, "maintenance",
			"Continue annual maintenance schedule; no elevated risk detected", now))
	}
	return actions
}

func hasMaintenanceType(maint []MaintenanceEvent, typ string) bool {
	for _, ev := range maint {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func ageBracket(age float64) string {
	switch {
	case age < 3:
		return "unit is in early service life"
	case age < 7:
		return "unit is in mid service life"
	case age < 10:
		return "unit is in late service life"
	default:
		return "unit has exceeded typical service life"
	}
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int64(v*shift+floatSign(v)*0.5)) / shift
}

func floatSign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
