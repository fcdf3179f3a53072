package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
	"heater-fleet/pkg/prediction"
)

// =============================================================================
// HEALTH AND METADATA
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "heater-fleet",
		"version": s.cfg.Version,
		"uptime":  time.Since(startTime).String(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "device repository not ready: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": s.cfg.Version,
		"service": "heater-fleet",
	})
}

// =============================================================================
// DEVICE CRUD
// =============================================================================

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(d.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if d.ID == "" {
		d.ID = "wh-" + uuid.NewString()[:8]
	}

	if err := s.repo.Create(r.Context(), &d); err != nil {
		s.respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.List(r.Context())
	if err != nil {
		s.respondRepoError(w, err)
		return
	}
	if devices == nil {
		devices = []*device.Device{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.repo.Get(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		s.respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d.ID = chi.URLParam(r, "deviceID")

	if err := s.repo.Update(r.Context(), &d); err != nil {
		s.respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		s.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MAINTENANCE RECORDS
// =============================================================================

func (s *Server) handleAddMaintenance(w http.ResponseWriter, r *http.Request) {
	var rec device.MaintenanceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}
	rec.DeviceID = chi.URLParam(r, "deviceID")
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}

	// The device must exist; some backends only check on read.
	if _, err := s.repo.Get(r.Context(), rec.DeviceID); err != nil {
		s.respondRepoError(w, err)
		return
	}
	if err := s.repo.AddMaintenance(r.Context(), &rec); err != nil {
		s.respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if _, err := s.repo.Get(r.Context(), deviceID); err != nil {
		s.respondRepoError(w, err)
		return
	}
	recs, err := s.repo.ListMaintenance(r.Context(), deviceID)
	if err != nil {
		s.respondRepoError(w, err)
		return
	}
	if recs == nil {
		recs = []*device.MaintenanceRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"maintenance": recs,
		"count":       len(recs),
	})
}

// =============================================================================
// PREDICTIONS
// =============================================================================

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	predType := prediction.PredictionType(chi.URLParam(r, "predType"))
	refresh := r.URL.Query().Get("refresh") == "true"

	if _, err := s.repo.Get(r.Context(), deviceID); err != nil {
		s.respondRepoError(w, err)
		return
	}

	result, ok := s.predictions.GetPrediction(r.Context(), deviceID, predType, refresh)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown prediction type: "+string(predType))
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// previewRequest runs a model directly on caller-supplied features.
type previewRequest struct {
	PredictionType prediction.PredictionType `json:"prediction_type"`
	DeviceID       string                    `json:"device_id,omitempty"`
	Features       prediction.Features       `json:"features"`
}

func (s *Server) handlePredictionPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PredictionType == "" {
		respondError(w, http.StatusBadRequest, "prediction_type is required")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = "preview"
	}
	if req.Features == nil {
		req.Features = prediction.Features{}
	}

	result := s.predictions.Predict(req.DeviceID, req.Features, req.PredictionType)
	if result == nil {
		respondError(w, http.StatusNotFound, "unknown prediction type: "+string(req.PredictionType))
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) respondRepoError(w http.ResponseWriter, err error) {
	if fe, ok := err.(*errors.FleetError); ok {
		switch fe.Code {
		case errors.ErrCodeDeviceNotFound:
			respondError(w, http.StatusNotFound, fe.Message)
			return
		case errors.ErrCodeDuplicateDevice:
			respondError(w, http.StatusConflict, fe.Message)
			return
		case errors.ErrCodeInvalidDevice:
			respondError(w, http.StatusBadRequest, fe.Message)
			return
		}
	}
	s.logger.Error().Err(err).Msg("repository error")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
