// Package main runs the MQTT to ClickHouse telemetry ingester.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"heater-fleet/internal/telemetry"
	"heater-fleet/pkg/platform"
)

func main() {
	platform.LoadDotenv()
	logger := platform.InitLogger("fleet-ingest")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := telemetry.NewStore(ctx, &telemetry.Config{
		Host:     platform.GetEnv("CLICKHOUSE_HOST", "localhost"),
		Port:     platform.GetEnvInt("CLICKHOUSE_PORT", 9000),
		Database: platform.GetEnv("CLICKHOUSE_DATABASE", "fleet"),
		Username: platform.GetEnv("CLICKHOUSE_USER", "default"),
		Password: platform.GetEnv("CLICKHOUSE_PASSWORD", ""),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to telemetry store")
	}
	defer store.Close()

	cfg := telemetry.IngestConfig{
		Broker:        platform.GetEnv("MQTT_BROKER", "tcp://localhost:1883"),
		ClientID:      platform.GetEnv("MQTT_CLIENT_ID", "heater-fleet-ingest"),
		Username:      platform.GetEnv("MQTT_USERNAME", ""),
		Password:      platform.GetEnv("MQTT_PASSWORD", ""),
		Topic:         platform.GetEnv("MQTT_TOPIC", "fleet/+/+"),
		FlushInterval: platform.GetEnvDuration("INGEST_FLUSH_INTERVAL", 5*time.Second),
		BatchSize:     platform.GetEnvInt("INGEST_BATCH_SIZE", 500),
	}

	ingestor := telemetry.NewIngestor(cfg, store, logger)
	if err := ingestor.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("ingester failed")
	}
	logger.Info().Msg("ingester stopped")
}
