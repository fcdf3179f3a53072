package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// IngestConfig holds MQTT subscriber configuration. Readings arrive on
// fleet/<device_id>/<metric> topics as JSON payloads.
type IngestConfig struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	Topic         string // subscription pattern, default "fleet/+/+"
	FlushInterval time.Duration
	BatchSize     int
}

// DefaultIngestConfig returns development defaults.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Broker:        "tcp://localhost:1883",
		ClientID:      "heater-fleet-ingest",
		Topic:         "fleet/+/+",
		FlushInterval: 5 * time.Second,
		BatchSize:     500,
	}
}

// readingPayload is the wire format published by devices.
type readingPayload struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Ingestor subscribes to device telemetry topics and batches readings
// into the store.
type Ingestor struct {
	cfg    IngestConfig
	store  *Store
	logger zerolog.Logger
	client mqtt.Client

	mu      sync.Mutex
	pending []Reading
}

// NewIngestor creates an MQTT ingest worker writing to store.
func NewIngestor(cfg IngestConfig, store *Store, logger zerolog.Logger) *Ingestor {
	if cfg.Topic == "" {
		cfg.Topic = "fleet/+/+"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Ingestor{cfg: cfg, store: store, logger: logger}
}

// Run connects, subscribes, and batches readings until ctx is canceled.
func (i *Ingestor) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(i.cfg.Broker)
	opts.SetClientID(i.cfg.ClientID)
	opts.SetUsername(i.cfg.Username)
	opts.SetPassword(i.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		i.logger.Info().Str("broker", i.cfg.Broker).Msg("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		i.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	i.client = mqtt.NewClient(opts)
	if token := i.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	defer i.client.Disconnect(250)

	if token := i.client.Subscribe(i.cfg.Topic, 1, i.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.cfg.Topic, token.Error())
	}
	i.logger.Info().Str("topic", i.cfg.Topic).Msg("subscribed to telemetry topic")

	ticker := time.NewTicker(i.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			i.flush(ctx)
		}
	}
}

func (i *Ingestor) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	reading, err := ParseReading(msg.Topic(), msg.Payload())
	if err != nil {
		i.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping malformed telemetry message")
		return
	}

	i.mu.Lock()
	i.pending = append(i.pending, reading)
	full := len(i.pending) >= i.cfg.BatchSize
	i.mu.Unlock()

	if full {
		i.flush(context.Background())
	}
}

func (i *Ingestor) flush(ctx context.Context) {
	i.mu.Lock()
	batch := i.pending
	i.pending = nil
	i.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := i.store.BulkInsert(ctx, batch); err != nil {
		i.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to flush telemetry batch")
		return
	}
	i.logger.Debug().Int("count", len(batch)).Msg("flushed telemetry batch")
}

// ParseReading decodes a fleet/<device_id>/<metric> message into a Reading.
// A missing timestamp defaults to the arrival time.
func ParseReading(topic string, payload []byte) (Reading, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return Reading{}, fmt.Errorf("unexpected topic shape %q", topic)
	}

	var body readingPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Reading{}, fmt.Errorf("decode payload: %w", err)
	}

	ts := time.Now()
	if body.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, body.Timestamp)
		if err != nil {
			return Reading{}, fmt.Errorf("parse timestamp %q: %w", body.Timestamp, err)
		}
		ts = parsed
	}

	return Reading{
		DeviceID:  parts[1],
		Metric:    parts[2],
		Value:     body.Value,
		Timestamp: ts,
	}, nil
}
