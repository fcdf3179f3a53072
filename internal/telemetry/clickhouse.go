// Package telemetry stores and queries time-series sensor readings.
// ClickHouse is the backing store; the ingest worker feeds it from MQTT.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"heater-fleet/pkg/errors"
)

// Reading is one sensor sample for a device metric.
type Reading struct {
	DeviceID  string    `ch:"device_id" json:"device_id"`
	Metric    string    `ch:"metric" json:"metric"`
	Value     float64   `ch:"value" json:"value"`
	Timestamp time.Time `ch:"timestamp" json:"timestamp"`
}

// DailyAggregate is one day's average for a device metric.
type DailyAggregate struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Metric names written by the ingest worker and read by the assembler.
const (
	MetricTemperature  = "temperature"
	MetricPressure     = "pressure"
	MetricHeatingCycle = "heating_cycle_minutes"
	MetricEfficiency   = "efficiency"
	MetricEnergyUsage  = "energy_usage"
	MetricFlowRate     = "flow_rate"
	MetricDailyLiters  = "daily_usage_liters"
)

// Config holds ClickHouse connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "fleet",
		Username: "default",
		Password: "",
	}
}

// Store reads and writes readings in ClickHouse.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore connects to ClickHouse and ensures the readings table exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	s := &Store{conn: conn, cfg: cfg}
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS readings (
			device_id String,
			metric LowCardinality(String),
			value Float64,
			timestamp DateTime64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (device_id, metric, timestamp)
		TTL toDateTime(timestamp) + INTERVAL 2 YEAR
	`
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create readings table: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Insert writes a single reading.
func (s *Store) Insert(ctx context.Context, r Reading) error {
	query := `INSERT INTO readings (device_id, metric, value, timestamp) VALUES (?, ?, ?, ?)`
	if err := s.conn.Exec(ctx, query, r.DeviceID, r.Metric, r.Value, r.Timestamp); err != nil {
		return errors.NewTelemetryWriteError(r.DeviceID, err)
	}
	return nil
}

// BulkInsert writes readings with a prepared batch.
func (s *Store) BulkInsert(ctx context.Context, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO readings (device_id, metric, value, timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range readings {
		if err := batch.Append(r.DeviceID, r.Metric, r.Value, r.Timestamp); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}
	return batch.Send()
}

// Readings returns readings for a device metric within [since, now],
// oldest first.
func (s *Store) Readings(ctx context.Context, deviceID, metric string, since time.Time) ([]Reading, error) {
	query := `
		SELECT device_id, metric, value, timestamp
		FROM readings
		WHERE device_id = ? AND metric = ? AND timestamp >= ?
		ORDER BY timestamp
	`
	rows, err := s.conn.Query(ctx, query, deviceID, metric, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.DeviceID, &r.Metric, &r.Value, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DailyAverages returns the per-day average of a device metric within
// [since, now], oldest first.
func (s *Store) DailyAverages(ctx context.Context, deviceID, metric string, since time.Time) ([]DailyAggregate, error) {
	query := `
		SELECT toDate(timestamp) AS day, avg(value) AS avg_value
		FROM readings
		WHERE device_id = ? AND metric = ? AND timestamp >= ?
		GROUP BY day
		ORDER BY day
	`
	rows, err := s.conn.Query(ctx, query, deviceID, metric, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily averages: %w", err)
	}
	defer rows.Close()

	var out []DailyAggregate
	for rows.Next() {
		var agg DailyAggregate
		if err := rows.Scan(&agg.Date, &agg.Value); err != nil {
			return nil, fmt.Errorf("failed to scan daily average: %w", err)
		}
		out = append(out, agg)
	}
	return out, nil
}

// OperationHours estimates total operating hours from heating-cycle
// readings (cycle minutes summed across the device's history).
func (s *Store) OperationHours(ctx context.Context, deviceID string) (float64, error) {
	query := `
		SELECT sum(value) / 60
		FROM readings
		WHERE device_id = ? AND metric = ?
	`
	row := s.conn.QueryRow(ctx, query, deviceID, MetricHeatingCycle)
	var hours float64
	if err := row.Scan(&hours); err != nil {
		return 0, fmt.Errorf("failed to sum operation hours: %w", err)
	}
	return hours, nil
}
