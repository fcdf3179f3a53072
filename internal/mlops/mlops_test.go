package mlops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heater-fleet/pkg/prediction"
)

func TestRegistryPromoteAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "registry.json")

	reg, err := OpenRegistry(path)
	require.NoError(t, err)

	_, ok := reg.Active(prediction.TypeLifespan)
	assert.False(t, ok)

	require.NoError(t, reg.Promote(ModelVersion{
		Type:    prediction.TypeLifespan,
		Version: "v2",
		Notes:   "tank integrity threshold tightened",
	}))
	require.NoError(t, reg.Promote(ModelVersion{
		Type:    prediction.TypeDescaling,
		Version: "v1",
	}))

	active, ok := reg.Active(prediction.TypeLifespan)
	require.True(t, ok)
	assert.Equal(t, "v2", active.Version)
	assert.False(t, active.PromotedAt.IsZero())

	// A fresh handle sees the persisted state.
	reloaded, err := OpenRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.List(), 2)
	active, ok = reloaded.Active(prediction.TypeDescaling)
	require.True(t, ok)
	assert.Equal(t, "v1", active.Version)
}

func TestRegistryPromoteReplacesVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := OpenRegistry(path)
	require.NoError(t, err)

	require.NoError(t, reg.Promote(ModelVersion{Type: prediction.TypeAnomaly, Version: "v1"}))
	require.NoError(t, reg.Promote(ModelVersion{Type: prediction.TypeAnomaly, Version: "v2"}))

	assert.Len(t, reg.List(), 1)
	active, _ := reg.Active(prediction.TypeAnomaly)
	assert.Equal(t, "v2", active.Version)
}

func TestMonitorObserve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitoring.jsonl")
	mon, err := OpenMonitor(path)
	require.NoError(t, err)
	defer mon.Close()

	results := []*prediction.PredictionResult{
		{PredictionType: prediction.TypeLifespan, DeviceID: "wh-1", PredictedValue: 0.8, Confidence: 0.7, Timestamp: time.Now()},
		{PredictionType: prediction.TypeLifespan, DeviceID: "wh-2", PredictedValue: 0.4, Confidence: 0.5, Timestamp: time.Now()},
		{PredictionType: prediction.TypeAnomaly, DeviceID: "wh-1", PredictedValue: 0.1, Confidence: 0.9, Timestamp: time.Now()},
	}
	for _, r := range results {
		require.NoError(t, mon.Observe(r))
	}

	mean, n := mon.MeanConfidence(prediction.TypeLifespan)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.6, mean, 1e-9)

	_, n = mon.MeanConfidence(prediction.TypeDescaling)
	assert.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"device_id":"wh-1"`)
}

func TestExperimentLogAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.jsonl")
	log, err := OpenExperimentLog(path)
	require.NoError(t, err)

	empty, err := log.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, log.Append(Experiment{
		ID:      "exp-1",
		Name:    "descaling tier sweep",
		Params:  map[string]float64{"tier_high": 0.85},
		Metrics: map[string]float64{"false_positive_rate": 0.12},
	}))
	require.NoError(t, log.Append(Experiment{ID: "exp-2", Name: "lifespan hardness bands"}))

	// A malformed line is skipped on read.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	exps, err := log.List()
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "exp-1", exps[0].ID)
	assert.InDelta(t, 0.85, exps[0].Params["tier_high"], 1e-9)
	assert.False(t, exps[1].CreatedAt.IsZero())
}
