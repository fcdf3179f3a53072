package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heater-fleet/internal/device"
	"heater-fleet/internal/repository/mock"
	"heater-fleet/pkg/prediction"
)

func newTestServer(t *testing.T) (*Server, *mock.Repository) {
	t.Helper()
	repo := mock.New()
	cache, err := prediction.NewLRUCache(16)
	require.NoError(t, err)
	svc := prediction.NewService(prediction.DefaultConfig(), nil, cache, zerolog.Nop(), nil)
	srv := NewServer(DefaultConfig(), repo, svc, prometheus.NewRegistry(), zerolog.Nop())
	return srv, repo
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "heater-fleet", body["service"])

	rec = doJSON(t, router, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateDevice(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices", map[string]any{
		"name":               "Garage heater",
		"water_hardness_ppm": 180,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created device.Device
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Garage heater", created.Name)
	assert.Equal(t, device.StatusActive, created.Status)
}

func TestCreateDeviceValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices", map[string]any{"model": "X1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "name is required", body["error"])
}

func TestCreateDeviceDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	payload := map[string]any{"id": "wh-dup", "name": "First"}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/devices", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetUpdateDeleteDevice(t *testing.T) {
	srv, repo := newTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "Before"}))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/v1/devices/wh-1", map[string]any{"name": "After"})
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/devices/wh-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDevices(t *testing.T) {
	srv, repo := newTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	decodeBody(t, rec, &body)
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Devices)

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))
	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-2", Name: "b"}))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices", nil)
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "wh-1", body.Devices[0].ID)
}

func TestMaintenanceEndpoints(t *testing.T) {
	srv, repo := newTestServer(t)
	router := srv.Router()

	require.NoError(t, repo.Create(context.Background(), &device.Device{ID: "wh-1", Name: "a"}))

	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices/wh-1/maintenance", map[string]any{
		"type":     "descaling",
		"findings": "heavy scale on element",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created device.MaintenanceRecord
	decodeBody(t, rec, &created)
	assert.Equal(t, "wh-1", created.DeviceID)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Date.IsZero())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-1/maintenance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Maintenance []device.MaintenanceRecord `json:"maintenance"`
		Count       int                        `json:"count"`
	}
	decodeBody(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	// Missing type is rejected, missing device is a 404.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/devices/wh-1/maintenance", map[string]any{"findings": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/devices/wh-nope/maintenance", map[string]any{"type": "descaling"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-nope/maintenance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPrediction(t *testing.T) {
	srv, repo := newTestServer(t)
	router := srv.Router()

	require.NoError(t, repo.Create(context.Background(), &device.Device{
		ID:               "wh-1",
		Name:             "a",
		InstallationDate: time.Now().AddDate(-3, 0, 0),
		WaterHardnessPPM: 150,
	}))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-1/predictions/lifespan_estimation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result prediction.PredictionResult
	decodeBody(t, rec, &result)
	assert.Equal(t, prediction.TypeLifespan, result.PredictionType)
	assert.Equal(t, "wh-1", result.DeviceID)
	assert.NotEmpty(t, result.RecommendedActions)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-1/predictions/crystal_ball", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/wh-nope/predictions/lifespan_estimation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredictionPreview(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/predictions/preview", map[string]any{
		"prediction_type": "descaling_requirement",
		"features": map[string]any{
			"water_hardness": 250,
			"maintenance_history": []map[string]any{
				{"type": "descaling", "date": "2024-05-01"},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result prediction.PredictionResult
	decodeBody(t, rec, &result)
	assert.Equal(t, prediction.TypeDescaling, result.PredictionType)
	assert.Equal(t, "preview", result.DeviceID)
	assert.NotEmpty(t, result.RecommendedActions)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/predictions/preview", map[string]any{
		"features": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/predictions/preview", map[string]any{
		"prediction_type": "crystal_ball",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyEnforcement(t *testing.T) {
	t.Setenv("API_KEY", "sekrit")

	srv, repo := newTestServer(t)
	router := srv.Router()
	require.NoError(t, repo.Create(context.Background(), &device.Device{ID: "wh-1", Name: "a"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
