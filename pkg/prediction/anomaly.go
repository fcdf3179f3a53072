package prediction

import (
	"fmt"
	"math"
	"time"
)

// TrendSignal describes a sustained directional change in one telemetry stream.
type TrendSignal struct {
	Metric            string  `json:"metric"`
	TrendDirection    string  `json:"trend_direction"`
	ProbableComponent string  `json:"probable_component"`
	Probability       float64 `json:"probability"`
	RatePerDay        float64 `json:"rate_per_day,omitempty"`
	PercentChange     float64 `json:"percent_change,omitempty"`
	DaysUntilCritical int     `json:"days_until_critical"`
}

// AnomalySignal describes one discrete telemetry anomaly.
type AnomalySignal struct {
	Metric       string    `json:"metric"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value"`
	DeviationPct float64   `json:"deviation_pct"`
	Description  string    `json:"description"`
}

// AnomalyDetails is the diagnostic detail block for anomaly detection.
type AnomalyDetails struct {
	TrendAnalysis map[string]TrendSignal `json:"trend_analysis"`
	Anomalies     []AnomalySignal        `json:"anomalies"`
	TrendCount    int                    `json:"trend_count"`
	AnomalyCount  int                    `json:"anomaly_count"`
}

func (AnomalyDetails) DetailType() PredictionType { return TypeAnomaly }

// AnomalyModel scans temperature, pressure, and heating cycle telemetry for
// trends and discrete anomalies. The predicted value is overall anomaly
// severity in [0,1].
type AnomalyModel struct {
	cfg AnomalyConfig
	now func() time.Time
}

// NewAnomalyModel creates the anomaly detection model.
func NewAnomalyModel(cfg AnomalyConfig) *AnomalyModel {
	return &AnomalyModel{cfg: cfg, now: time.Now}
}

func (m *AnomalyModel) Type() PredictionType { return TypeAnomaly }

func (m *AnomalyModel) Predict(deviceID string, f Features) *PredictionResult {
	now := m.now()
	details := &AnomalyDetails{TrendAnalysis: map[string]TrendSignal{}}
	var used []string
	streams := 0

	if temps := f.Series(FeatureTempReadings); len(temps) >= 3 {
		used = append(used, FeatureTempReadings)
		streams++
		m.analyzeTemperature(temps, details)
	}
	if pressures := f.Series(FeaturePressureReadings); len(pressures) >= 2 {
		used = append(used, FeaturePressureReadings)
		streams++
		m.analyzePressure(pressures, details)
	}
	if cycles := f.Series(FeatureHeatingCycles); len(cycles) >= 3 {
		used = append(used, FeatureHeatingCycles)
		streams++
		m.analyzeHeatingCycles(cycles, details)
	}

	details.TrendCount = len(details.TrendAnalysis)
	details.AnomalyCount = len(details.Anomalies)

	severity := math.Min(1, (float64(details.AnomalyCount)*m.cfg.AnomalyWeight+
		float64(details.TrendCount)*m.cfg.TrendWeight)/m.cfg.SeverityDivisor)

	conf := clamp(0.35+0.2*float64(streams), 0.3, 0.95)

	actions := m.recommend(deviceID, details, now)
	sortActions(actions)

	return &PredictionResult{
		PredictionType:     TypeAnomaly,
		DeviceID:           deviceID,
		PredictedValue:     severity,
		Confidence:         conf,
		FeaturesUsed:       used,
		Timestamp:          now,
		RecommendedActions: actions,
		RawDetails:         details,
	}
}

// analyzeTemperature flags sustained drift toward critical temperatures and
// discrete spikes where a reading exceeds both neighbors by the spike delta.
func (m *AnomalyModel) analyzeTemperature(pts []Reading, details *AnomalyDetails) {
	first, last := pts[0], pts[len(pts)-1]
	days := last.Timestamp.Sub(first.Timestamp).Hours() / 24
	if days > 0 {
		rate := (last.Value - first.Value) / days
		if math.Abs(rate) > m.cfg.TempTrendRatePerDay {
			trend := TrendSignal{
				Metric:            "temperature",
				RatePerDay:        roundTo(rate, 3),
				Probability:       clamp(0.4+math.Abs(rate)*0.5, 0, 0.9),
				DaysUntilCritical: m.cfg.NeverDays,
			}
			if rate > 0 {
				trend.TrendDirection = "increasing"
				trend.ProbableComponent = "thermostat"
				if remaining := m.cfg.TempCriticalHigh - last.Value; remaining > 0 {
					trend.DaysUntilCritical = capDays(remaining/rate, m.cfg.NeverDays)
				}
			} else {
				trend.TrendDirection = "decreasing"
				trend.ProbableComponent = "heating_element"
				if remaining := last.Value - m.cfg.TempCriticalLow; remaining > 0 {
					trend.DaysUntilCritical = capDays(remaining/-rate, m.cfg.NeverDays)
				}
			}
			details.TrendAnalysis["temperature"] = trend
		}
	}

	for i := 1; i < len(pts)-1; i++ {
		prev, mid, next := pts[i-1].Value, pts[i].Value, pts[i+1].Value
		if mid > prev+m.cfg.TempSpikeDelta && mid > next+m.cfg.TempSpikeDelta {
			base := (prev + next) / 2
			dev := 0.0
			if base != 0 {
				dev = (mid - base) / base * 100
			}
			details.Anomalies = append(details.Anomalies, AnomalySignal{
				Metric:       "temperature",
				Type:         "spike",
				Timestamp:    pts[i].Timestamp,
				Value:        mid,
				DeviationPct: roundTo(dev, 2),
				Description:  fmt.Sprintf("temperature spike to %.1f° between stable neighbors", mid),
			})
		}
	}
}

// analyzePressure flags step changes above the configured kPa delta and
// sustained deviation from the early baseline.
func (m *AnomalyModel) analyzePressure(pts []Reading, details *AnomalyDetails) {
	n := len(pts)
	baseCount := 3
	if n < baseCount {
		baseCount = n
	}
	baseline := mean(seriesValues(pts[:baseCount]))

	spikeAt := map[time.Time]bool{}
	for i := 1; i < n; i++ {
		delta := pts[i].Value - pts[i-1].Value
		if math.Abs(delta) > m.cfg.PressureStepKPa {
			dev := 0.0
			if pts[i-1].Value != 0 {
				dev = delta / pts[i-1].Value * 100
			}
			details.Anomalies = append(details.Anomalies, AnomalySignal{
				Metric:       "pressure",
				Type:         "spike",
				Timestamp:    pts[i].Timestamp,
				Value:        pts[i].Value,
				DeviationPct: roundTo(dev, 2),
				Description:  fmt.Sprintf("pressure step of %.1f kPa between consecutive readings", delta),
			})
			spikeAt[pts[i].Timestamp] = true
		}
	}

	if baseline == 0 {
		return
	}
	for _, p := range pts {
		if spikeAt[p.Timestamp] {
			continue
		}
		dev := (p.Value - baseline) / baseline
		if math.Abs(dev) > m.cfg.PressureBaselinePct {
			typ := "sustained_high"
			if dev < 0 {
				typ = "sustained_low"
			}
			details.Anomalies = append(details.Anomalies, AnomalySignal{
				Metric:       "pressure",
				Type:         typ,
				Timestamp:    p.Timestamp,
				Value:        p.Value,
				DeviationPct: roundTo(dev*100, 2),
				Description:  fmt.Sprintf("pressure %.1f kPa deviates %.1f%% from baseline %.1f", p.Value, dev*100, baseline),
			})
		}
	}
}

// analyzeHeatingCycles compares the most recent three cycle durations
// against the all-time average.
func (m *AnomalyModel) analyzeHeatingCycles(pts []Reading, details *AnomalyDetails) {
	all := mean(seriesValues(pts))
	if all == 0 {
		return
	}
	recent := mean(seriesValues(pts[len(pts)-3:]))
	pct := (recent - all) / all * 100

	if math.Abs(pct) <= m.cfg.CycleTrendPct {
		return
	}

	trend := TrendSignal{
		Metric:            "heating_cycles",
		PercentChange:     roundTo(pct, 2),
		Probability:       clamp(0.4+math.Abs(pct)/100, 0, 0.9),
		DaysUntilCritical: m.cycleDays(math.Abs(pct)),
	}
	if pct > 0 {
		trend.TrendDirection = "longer"
		trend.ProbableComponent = "heating_element"
	} else {
		trend.TrendDirection = "shorter"
		trend.ProbableComponent = "thermostat"
	}
	details.TrendAnalysis["heating_cycles"] = trend
}

func (m *AnomalyModel) cycleDays(absPct float64) int {
	idx := bandIndex(absPct, m.cfg.CycleSeverityBands)
	if idx >= len(m.cfg.CycleSeverityDays) {
		idx = len(m.cfg.CycleSeverityDays) - 1
	}
	return m.cfg.CycleSeverityDays[idx]
}

func (m *AnomalyModel) recommend(deviceID string, details *AnomalyDetails, now time.Time) []RecommendedAction {
	var actions []RecommendedAction

	if trend, ok := details.TrendAnalysis["temperature"]; ok {
		sev := SeverityMedium
		switch {
		case trend.DaysUntilCritical < 14:
			sev = SeverityHigh
		case trend.DaysUntilCritical > 45:
			sev = SeverityLow
		}
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "temp_trend", now),
			Description:     fmt.Sprintf("Inspect %s; temperature is %s at %.2f°/day", trend.ProbableComponent, trend.TrendDirection, math.Abs(trend.RatePerDay)),
			Severity:        sev,
			Impact:          "Untreated drift can reach unsafe operating temperatures",
			ExpectedBenefit: "Corrects the fault before critical temperature is reached",
			DueDate:         dueIn(now, minInt(trend.DaysUntilCritical, 30)),
		})
	}

	pressureCount := 0
	var worstPressure float64
	for _, a := range details.Anomalies {
		if a.Metric == "pressure" {
			pressureCount++
			if math.Abs(a.DeviationPct) > worstPressure {
				worstPressure = math.Abs(a.DeviationPct)
			}
		}
	}
	if pressureCount > 0 {
		sev := SeverityMedium
		if worstPressure > 15 {
			sev = SeverityHigh
		} else if worstPressure < 7 {
			sev = SeverityLow
		}
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "pressure_check", now),
			Description:     fmt.Sprintf("Check pressure relief valve and expansion control; %d pressure anomalies detected", pressureCount),
			Severity:        sev,
			Impact:          "Pressure excursions stress the tank and relief valve",
			ExpectedBenefit: "Prevents pressure-related tank damage",
			DueDate:         dueIn(now, 14),
		})
	}

	tempSpikes := 0
	for _, a := range details.Anomalies {
		if a.Metric == "temperature" {
			tempSpikes++
		}
	}
	if tempSpikes > 0 {
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "temp_spikes", now),
			Description:     fmt.Sprintf("Verify thermostat calibration; %d temperature spikes detected", tempSpikes),
			Severity:        SeverityMedium,
			Impact:          "Spiking temperatures indicate intermittent control faults",
			ExpectedBenefit: "Stable temperature control and reduced element stress",
			DueDate:         dueIn(now, 30),
		})
	}

	if trend, ok := details.TrendAnalysis["heating_cycles"]; ok {
		sev := SeverityMedium
		switch {
		case trend.DaysUntilCritical <= 14:
			sev = SeverityHigh
		case trend.DaysUntilCritical >= 60:
			sev = SeverityLow
		}
		actions = append(actions, RecommendedAction{
			ActionID:        actionID(deviceID, "cycle_trend", now),
			Description:     fmt.Sprintf("Inspect %s; heating cycles are %.0f%% %s than normal", trend.ProbableComponent, math.Abs(trend.PercentChange), trend.TrendDirection),
			Severity:        sev,
			Impact:          "Cycle duration drift signals efficiency loss or control faults",
			ExpectedBenefit: "Restores normal heating cycle behavior",
			DueDate:         dueIn(now, trend.DaysUntilCritical),
		})
	}

	if len(actions) == 0 {
		actions = append(actions, monitoringFallback(deviceID, "telemetry",
			"Continue normal telemetry monitoring; no anomalies detected", now))
	}
	return actions
}

func capDays(days float64, never int) int {
	if days <= 0 || days >= float64(never) {
		return never
	}
	return int(days)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
