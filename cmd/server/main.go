// Package main runs the fleet API server.
package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"heater-fleet/internal/api"
	"heater-fleet/internal/assembler"
	"heater-fleet/internal/cache"
	"heater-fleet/internal/repository"
	"heater-fleet/internal/telemetry"
	"heater-fleet/pkg/platform"
	"heater-fleet/pkg/prediction"
)

var version = "dev"

func main() {
	platform.LoadDotenv()
	logger := platform.InitLogger("fleet-api")

	ctx := context.Background()

	repo, err := repository.New(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize device repository")
	}
	defer repo.Close()

	// Telemetry is optional; without it the assembler serves metadata-only
	// feature maps.
	var telReader assembler.TelemetryReader
	if platform.GetEnvBool("TELEMETRY_ENABLED", false) {
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
		telReader = store
	} else {
		logger.Warn().Msg("telemetry disabled, predictions use device metadata only")
	}

	predCfg := prediction.DefaultConfig()
	if path := platform.GetEnv("MODEL_CONFIG", ""); path != "" {
		loaded, err := prediction.LoadConfig(path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("failed to load model config")
		}
		predCfg = loaded
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var predCache prediction.Cache
	if platform.GetEnv("PREDICTION_CACHE", "lru") == "redis" {
		redisCache, err := cache.NewRedisCache(ctx,
			platform.GetEnv("REDIS_ADDR", "localhost:6379"),
			platform.GetEnv("REDIS_PASSWORD", ""),
			platform.GetEnvInt("REDIS_DB", 0),
			platform.GetEnvDuration("PREDICTION_CACHE_TTL", 15*time.Minute),
			logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis cache")
		}
		defer redisCache.Close()
		predCache = redisCache
	} else {
		lruCache, err := prediction.NewLRUCache(platform.GetEnvInt("PREDICTION_CACHE_SIZE", 1024))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create prediction cache")
		}
		predCache = lruCache
	}

	features := assembler.New(repo, telReader, logger,
		platform.GetEnvDuration("FEATURE_LOOKBACK", 90*24*time.Hour))
	metrics := prediction.NewMetrics(registry)
	predictions := prediction.NewService(predCfg, features, predCache, logger, metrics)

	cfg := api.DefaultConfig()
	cfg.Port = platform.GetEnv("PORT", "8080")
	cfg.Version = version

	server := api.NewServer(cfg, repo, predictions, registry, logger)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
