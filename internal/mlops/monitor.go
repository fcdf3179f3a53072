package mlops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"heater-fleet/pkg/prediction"
)

// Record is one monitored prediction, appended to the JSON-lines log.
type Record struct {
	Timestamp      time.Time                 `json:"timestamp"`
	DeviceID       string                    `json:"device_id"`
	Type           prediction.PredictionType `json:"type"`
	PredictedValue float64                   `json:"predicted_value"`
	Confidence     float64                   `json:"confidence"`
	FeatureCount   int                       `json:"feature_count"`
	ActionCount    int                       `json:"action_count"`
}

// Monitor appends prediction outcomes to a JSON-lines file and keeps
// rolling per-type confidence averages for drift inspection.
type Monitor struct {
	mu   sync.Mutex
	file *os.File

	counts  map[prediction.PredictionType]int
	confSum map[prediction.PredictionType]float64
}

// OpenMonitor opens (or creates) the monitoring log for appending.
func OpenMonitor(path string) (*Monitor, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create monitoring directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open monitoring log: %w", err)
	}
	return &Monitor{
		file:    f,
		counts:  map[prediction.PredictionType]int{},
		confSum: map[prediction.PredictionType]float64{},
	}, nil
}

// Observe logs one prediction result.
func (m *Monitor) Observe(result *prediction.PredictionResult) error {
	rec := Record{
		Timestamp:      result.Timestamp,
		DeviceID:       result.DeviceID,
		Type:           result.PredictionType,
		PredictedValue: result.PredictedValue,
		Confidence:     result.Confidence,
		FeatureCount:   len(result.FeaturesUsed),
		ActionCount:    len(result.RecommendedActions),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode monitoring record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append monitoring record: %w", err)
	}
	m.counts[result.PredictionType]++
	m.confSum[result.PredictionType] += result.Confidence
	return nil
}

// MeanConfidence reports the rolling mean confidence observed for a type.
func (m *Monitor) MeanConfidence(t prediction.PredictionType) (float64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.counts[t]
	if n == 0 {
		return 0, 0
	}
	return m.confSum[t] / float64(n), n
}

// Close flushes and closes the log.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
