// Package prediction implements the heuristic prediction and scoring models
// for water heater fleet devices: lifespan estimation, anomaly detection,
// usage pattern analysis, multi-factor risk scoring, and descaling need.
//
// Every model consumes a per-device feature map and produces a
// PredictionResult. Models never return errors: missing or malformed
// features fall back to documented defaults and lower the reported
// confidence instead.
package prediction

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PredictionType discriminates the model that produced a result.
//
// For TypeMultiFactor and TypeUsagePatterns the predicted value is a RISK
// score: higher means worse. The combined multi-factor score and the
// normalized wear acceleration are both risk-shaped quantities.
type PredictionType string

const (
	TypeLifespan         PredictionType = "lifespan_estimation"
	TypeAnomaly          PredictionType = "anomaly_detection"
	TypeUsagePatterns    PredictionType = "usage_patterns"
	TypeMultiFactor      PredictionType = "multi_factor"
	TypeDescaling        PredictionType = "descaling_requirement"
	TypeComponentFailure PredictionType = "component_failure"
)

// Severity ranks recommended actions.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// RecommendedAction is one suggested maintenance or operational step.
type RecommendedAction struct {
	ActionID          string           `json:"action_id"`
	Description       string           `json:"description"`
	Severity          Severity         `json:"severity"`
	Impact            string           `json:"impact,omitempty"`
	ExpectedBenefit   string           `json:"expected_benefit,omitempty"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	EstimatedCost     *decimal.Decimal `json:"estimated_cost,omitempty"`
	EstimatedDuration string           `json:"estimated_duration,omitempty"`
}

// Details is the tagged union of model-specific diagnostic detail.
// Each model contributes exactly one implementation; the concrete type is
// selected by the result's PredictionType.
type Details interface {
	DetailType() PredictionType
}

// PredictionResult is the universal output of every model.
//
// Invariants: Confidence is in [0,1]; PredictedValue is clamped to the
// model's documented range before returning; RecommendedActions is never
// empty (a low-severity monitoring fallback is emitted when no risk signal
// fires).
type PredictionResult struct {
	PredictionType     PredictionType      `json:"prediction_type"`
	DeviceID           string              `json:"device_id"`
	PredictedValue     float64             `json:"predicted_value"`
	Confidence         float64             `json:"confidence"`
	FeaturesUsed       []string            `json:"features_used"`
	Timestamp          time.Time           `json:"timestamp"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
	RawDetails         Details             `json:"raw_details,omitempty"`
}

// actionID builds the conventional {device}_{topic}_{date} identifier.
func actionID(deviceID, topic string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", deviceID, topic, at.Format("20060102"))
}

// sortActions orders actions by severity (critical first), then due date
// (earliest first, actions without a due date last).
func sortActions(actions []RecommendedAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		ri, rj := actions[i].Severity.rank(), actions[j].Severity.rank()
		if ri != rj {
			return ri > rj
		}
		di, dj := actions[i].DueDate, actions[j].DueDate
		switch {
		case di == nil && dj == nil:
			return false
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
}

// monitoringFallback is the action emitted when no risk signal is detected.
func monitoringFallback(deviceID, topic, description string, now time.Time) RecommendedAction {
	return RecommendedAction{
		ActionID:        actionID(deviceID, topic, now),
		Description:     description,
		Severity:        SeverityLow,
		Impact:          "None expected; device operating within normal parameters",
		ExpectedBenefit: "Early detection of future issues",
	}
}

func dueIn(now time.Time, days int) *time.Time {
	t := now.AddDate(0, 0, days)
	return &t
}

func cost(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
