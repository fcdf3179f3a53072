package prediction

import (
	"sort"
	"time"
)

// Recognized feature keys. The Feature Assembler (or any caller) supplies a
// flat map keyed by these names; unrecognized keys are ignored and missing
// keys fall back to per-model defaults.
const (
	FeatureInstallationDate   = "installation_date"
	FeatureOperationHours     = "total_operation_hours"
	FeatureWaterHardness      = "water_hardness"
	FeatureTempSettings       = "temperature_settings"
	FeatureTargetTemperature  = "target_temperature"
	FeatureUsageIntensity     = "usage_intensity"
	FeatureComponentHealth    = "component_health"
	FeatureMaintenanceHistory = "maintenance_history"
	FeatureTempReadings       = "temperature_readings"
	FeaturePressureReadings   = "pressure_readings"
	FeatureHeatingCycles      = "heating_cycle_data"
	FeatureDailyUsage         = "daily_usage_liters"
	FeatureEfficiency         = "efficiency"
	FeatureEnergyUsage        = "energy_usage"
	FeatureFlowRate           = "flow_rate"
	FeaturePH                 = "ph"
	FeatureTDS                = "total_dissolved_solids"
	FeatureAmbientTemp        = "ambient_temperature"
	FeatureAmbientHumidity    = "ambient_humidity"
	FeatureScaleBuildupMM     = "scale_buildup_mm"
	FeatureAvgTempSetting     = "average_temperature_setting"
)

// Features is the per-device key/value bundle of telemetry and metadata
// fed into a prediction model.
type Features map[string]any

// Reading is one timestamped telemetry point.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// DailyValue is one per-day aggregate (e.g. liters consumed).
type DailyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MaintenanceEvent is one historical maintenance record.
type MaintenanceEvent struct {
	Type     string    `json:"type"`
	Date     time.Time `json:"date"`
	Findings string    `json:"findings,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// Has reports whether the key is present.
func (f Features) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Float returns the value under key, or def when absent or non-numeric.
func (f Features) Float(key string, def float64) float64 {
	if v, ok := f.FloatOK(key); ok {
		return v
	}
	return def
}

// FloatOK returns the numeric value under key and whether it was usable.
func (f Features) FloatOK(key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// String returns the string value under key.
func (f Features) String(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// Time returns the parsed timestamp under key. String values are tried
// against RFC3339 and common date layouts; unparseable values report false.
func (f Features) Time(key string) (time.Time, bool) {
	v, ok := f[key]
	if !ok {
		return time.Time{}, false
	}
	return parseTime(v)
}

// ComponentHealth returns the component → health mapping (health in [0,1]).
// Entries with non-numeric health are dropped.
func (f Features) ComponentHealth() map[string]float64 {
	out := map[string]float64{}
	switch m := f[FeatureComponentHealth].(type) {
	case map[string]float64:
		for k, v := range m {
			out[k] = clamp01(v)
		}
	case map[string]any:
		for k, v := range m {
			if n, ok := toFloat(v); ok {
				out[k] = clamp01(n)
			}
		}
	}
	return out
}

// Maintenance returns the maintenance history, oldest first. Records with
// unparseable dates are dropped.
func (f Features) Maintenance() []MaintenanceEvent {
	var out []MaintenanceEvent
	switch recs := f[FeatureMaintenanceHistory].(type) {
	case []MaintenanceEvent:
		out = append(out, recs...)
	case []any:
		for _, r := range recs {
			m, ok := r.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := m["type"].(string)
			date, ok := parseTime(m["date"])
			if !ok {
				continue
			}
			findings, _ := m["findings"].(string)
			out = append(out, MaintenanceEvent{Type: typ, Date: date, Findings: findings})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Series returns the timestamped readings under key, sorted by timestamp.
// Points with unparseable timestamps or non-numeric values are dropped.
func (f Features) Series(key string) []Reading {
	var out []Reading
	switch pts := f[key].(type) {
	case []Reading:
		out = append(out, pts...)
	case []any:
		for _, p := range pts {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			ts, ok := parseTime(m["timestamp"])
			if !ok {
				continue
			}
			v, ok := toFloat(m["value"])
			if !ok {
				continue
			}
			out = append(out, Reading{Timestamp: ts, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Daily returns per-day aggregates under key, sorted by date.
func (f Features) Daily(key string) []DailyValue {
	var out []DailyValue
	switch pts := f[key].(type) {
	case []DailyValue:
		out = append(out, pts...)
	case []any:
		for _, p := range pts {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			date, ok := parseTime(m["date"])
			if !ok {
				continue
			}
			v, ok := toFloat(m["value"])
			if !ok {
				continue
			}
			out = append(out, DailyValue{Date: date, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// temperatureSetting resolves the configured setpoint in °C from either
// temperature_settings or target_temperature.
func (f Features) temperatureSetting() (float64, bool) {
	if v, ok := f.FloatOK(FeatureTempSettings); ok {
		return v, true
	}
	return f.FloatOK(FeatureTargetTemperature)
}

func seriesValues(pts []Reading) []float64 {
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	return vals
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
