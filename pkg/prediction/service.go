package prediction

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Model is one prediction model. Implementations never return errors:
// missing features degrade confidence, and the service converts panics into
// a degraded fallback result.
type Model interface {
	Type() PredictionType
	Predict(deviceID string, features Features) *PredictionResult
}

// FeatureSource assembles the per-device feature map. An error is treated
// as an empty feature map, not a failed prediction.
type FeatureSource interface {
	Assemble(ctx context.Context, deviceID string) (Features, error)
}

// Cache stores the last computed result per (device, type). Implementations
// are last-write-wins; a duplicate computation under concurrency is
// harmless.
type Cache interface {
	Get(ctx context.Context, key string) (*PredictionResult, bool)
	Set(ctx context.Context, key string, result *PredictionResult)
}

// LRUCache is the default in-process bounded cache.
type LRUCache struct {
	inner *lru.Cache[string, *PredictionResult]
}

// NewLRUCache creates a bounded in-process prediction cache.
func NewLRUCache(capacity int) (*LRUCache, error) {
	inner, err := lru.New[string, *PredictionResult](capacity)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (*PredictionResult, bool) {
	return c.inner.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key string, result *PredictionResult) {
	c.inner.Add(key, result)
}

// Metrics counts model invocations and cache behavior.
type Metrics struct {
	Predictions *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	CacheHits   prometheus.Counter
	Fallbacks   *prometheus.CounterVec
}

// NewMetrics creates and registers prediction metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Prediction model invocations by type.",
		}, []string{"type"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prediction_duration_seconds",
			Help:    "Prediction model latency by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_hits_total",
			Help: "Prediction results served from cache.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_fallbacks_total",
			Help: "Degraded fallback results by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.Predictions, m.Duration, m.CacheHits, m.Fallbacks)
	}
	return m
}

// Service looks up the model for a prediction type, assembles features,
// invokes the model, and caches results per (device, type).
type Service struct {
	models   map[PredictionType]Model
	features FeatureSource
	cache    Cache
	logger   zerolog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewService creates a prediction service with the standard five models.
func NewService(cfg Config, features FeatureSource, cache Cache, logger zerolog.Logger, metrics *Metrics) *Service {
	s := &Service{
		models:   map[PredictionType]Model{},
		features: features,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
	s.Register(NewLifespanModel(cfg.Lifespan))
	s.Register(NewAnomalyModel(cfg.Anomaly))
	s.Register(NewUsageModel(cfg.Usage))
	s.Register(NewMultiFactorModel(cfg.MultiFactor))
	s.Register(NewDescalingModel(cfg.Descaling))
	return s
}

// Register adds or replaces a model.
func (s *Service) Register(m Model) {
	s.models[m.Type()] = m
}

// Types returns the registered prediction types.
func (s *Service) Types() []PredictionType {
	out := make([]PredictionType, 0, len(s.models))
	for t := range s.models {
		out = append(out, t)
	}
	return out
}

// GetPrediction returns the cached or freshly computed prediction for
// (deviceID, predType). The boolean is false only when the prediction type
// is unrecognized; the service never returns an error to its caller.
func (s *Service) GetPrediction(ctx context.Context, deviceID string, predType PredictionType, forceRefresh bool) (*PredictionResult, bool) {
	if _, ok := s.models[predType]; !ok {
		s.logger.Warn().Str("type", string(predType)).Msg("unknown prediction type requested")
		return nil, false
	}

	key := deviceID + ":" + string(predType)
	if !forceRefresh && s.cache != nil {
		if cached, hit := s.cache.Get(ctx, key); hit {
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			return cached, true
		}
	}

	features := Features{}
	if s.features != nil {
		assembled, err := s.features.Assemble(ctx, deviceID)
		if err != nil {
			s.logger.Warn().Err(err).Str("device_id", deviceID).
				Msg("feature assembly failed, predicting from empty features")
		} else {
			features = assembled
		}
	}

	result := s.Predict(deviceID, features, predType)
	if result == nil {
		return nil, false
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	return result, true
}

// Predict runs a model directly against caller-supplied features, bypassing
// assembly and cache. Used by the preview endpoint and the CLI.
func (s *Service) Predict(deviceID string, features Features, predType PredictionType) *PredictionResult {
	model, ok := s.models[predType]
	if !ok {
		return nil
	}

	start := s.now()
	result := s.safePredict(model, deviceID, features)
	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(string(predType)).Inc()
		s.metrics.Duration.WithLabelValues(string(predType)).Observe(time.Since(start).Seconds())
	}
	return result
}

// safePredict applies the uniform never-panic contract: a panic in any
// model becomes a degraded-but-valid result with low confidence.
func (s *Service) safePredict(model Model, deviceID string, features Features) (result *PredictionResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).
				Str("device_id", deviceID).
				Str("type", string(model.Type())).
				Msg("prediction model panicked, returning degraded result")
			if s.metrics != nil {
				s.metrics.Fallbacks.WithLabelValues(string(model.Type())).Inc()
			}
			result = s.fallbackResult(deviceID, model.Type())
		}
	}()
	return model.Predict(deviceID, features)
}

// fallbackResult is the degraded result emitted when a model fails
// unexpectedly: a neutral midpoint value, low confidence, and the two
// generic recommendations.
func (s *Service) fallbackResult(deviceID string, predType PredictionType) *PredictionResult {
	now := s.now()
	return &PredictionResult{
		PredictionType: predType,
		DeviceID:       deviceID,
		PredictedValue: 0.5,
		Confidence:     0.3,
		FeaturesUsed:   []string{},
		Timestamp:      now,
		RecommendedActions: []RecommendedAction{
			{
				ActionID:        actionID(deviceID, "professional_inspection", now),
				Description:     "Schedule a professional inspection; automated analysis could not complete",
				Severity:        SeverityMedium,
				Impact:          "Device state cannot be assessed from available data",
				ExpectedBenefit: "Manual assessment replaces the failed automated one",
				DueDate:         dueIn(now, 30),
			},
			{
				ActionID:        actionID(deviceID, "data_quality", now),
				Description:     "Review and correct device telemetry and metadata records",
				Severity:        SeverityLow,
				Impact:          "Malformed input data prevents reliable prediction",
				ExpectedBenefit: "Restores automated prediction coverage",
			},
		},
	}
}
