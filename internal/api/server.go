// Package api provides the HTTP API for the fleet backend: device CRUD,
// maintenance records, and prediction endpoints.
package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/platform"
	"heater-fleet/pkg/prediction"
)

var startTime = time.Now()

// Config holds server configuration.
type Config struct {
	Port         string
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         "8080",
		Version:      "dev",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	cfg         Config
	repo        device.Repository
	predictions *prediction.Service
	logger      zerolog.Logger
	registry    *prometheus.Registry
	httpServer  *http.Server

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewServer creates the API server over the configured repository and
// prediction service.
func NewServer(cfg Config, repo device.Repository, predictions *prediction.Service, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		repo:        repo,
		predictions: predictions,
		logger:      logger,
		registry:    registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if registry != nil {
		registry.MustRegister(s.httpRequests, s.httpDuration)
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/version", s.handleVersion)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware)

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", s.handleCreateDevice)
			r.Get("/", s.handleListDevices)
			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/maintenance", s.handleAddMaintenance)
				r.Get("/maintenance", s.handleListMaintenance)
				r.Get("/predictions/{predType}", s.handleGetPrediction)
			})
		})

		r.Post("/predictions/preview", s.handlePredictionPreview)
	})

	return r
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("port", s.cfg.Port).Str("version", s.cfg.Version).
			Msg("starting fleet API server")
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		s.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
