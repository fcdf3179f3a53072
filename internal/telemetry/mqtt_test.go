package telemetry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    Reading
		wantErr bool
	}{
		{
			name:    "full payload",
			topic:   "fleet/wh-42/temperature",
			payload: `{"value": 121.5, "timestamp": "2025-06-15T08:30:00Z"}`,
			want: Reading{
				DeviceID:  "wh-42",
				Metric:    "temperature",
				Value:     121.5,
				Timestamp: time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC),
			},
		},
		{
			name:    "missing timestamp defaults to arrival time",
			topic:   "fleet/wh-42/pressure",
			payload: `{"value": 310}`,
			want:    Reading{DeviceID: "wh-42", Metric: "pressure", Value: 310},
		},
		{
			name:    "wrong topic depth",
			topic:   "fleet/wh-42/temperature/extra",
			payload: `{"value": 1}`,
			wantErr: true,
		},
		{
			name:    "empty device segment",
			topic:   "fleet//temperature",
			payload: `{"value": 1}`,
			wantErr: true,
		},
		{
			name:    "malformed payload",
			topic:   "fleet/wh-42/temperature",
			payload: `{"value": `,
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			topic:   "fleet/wh-42/temperature",
			payload: `{"value": 1, "timestamp": "yesterday"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReading(tt.topic, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.DeviceID, got.DeviceID)
			assert.Equal(t, tt.want.Metric, got.Metric)
			assert.InDelta(t, tt.want.Value, got.Value, 1e-9)
			if !tt.want.Timestamp.IsZero() {
				assert.True(t, got.Timestamp.Equal(tt.want.Timestamp))
			} else {
				assert.WithinDuration(t, time.Now(), got.Timestamp, time.Minute)
			}
		})
	}
}

func TestIngestConfigDefaults(t *testing.T) {
	i := NewIngestor(IngestConfig{Broker: "tcp://broker:1883"}, nil, zerolog.Nop())

	assert.Equal(t, "fleet/+/+", i.cfg.Topic)
	assert.Equal(t, 5*time.Second, i.cfg.FlushInterval)
	assert.Equal(t, 500, i.cfg.BatchSize)
}
