// Package mock provides an in-memory device repository, used for local
// development, the demo environment, and unit tests.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

// Repository is a thread-safe in-memory device store.
type Repository struct {
	mu      sync.RWMutex
	devices map[string]*device.Device
	maint   map[string][]*device.MaintenanceRecord
}

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{
		devices: map[string]*device.Device{},
		maint:   map[string][]*device.MaintenanceRecord{},
	}
}

func (r *Repository) Create(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = "wh-" + uuid.NewString()[:8]
	}
	if _, exists := r.devices[d.ID]; exists {
		return errors.NewDuplicateDeviceError(d.ID)
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = device.StatusActive
	}
	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, errors.NewDeviceNotFoundError(id)
	}
	copied := *d
	return &copied, nil
}

func (r *Repository) List(_ context.Context) ([]*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*device.Device, 0, len(r.devices))
	for _, d := range r.devices {
		copied := *d
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) Update(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.devices[d.ID]
	if !ok {
		return errors.NewDeviceNotFoundError(d.ID)
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now()
	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return errors.NewDeviceNotFoundError(id)
	}
	delete(r.devices, id)
	delete(r.maint, id)
	return nil
}

func (r *Repository) AddMaintenance(_ context.Context, rec *device.MaintenanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[rec.DeviceID]; !ok {
		return errors.NewDeviceNotFoundError(rec.DeviceID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	copied := *rec
	r.maint[rec.DeviceID] = append(r.maint[rec.DeviceID], &copied)
	return nil
}

func (r *Repository) ListMaintenance(_ context.Context, deviceID string) ([]*device.MaintenanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.maint[deviceID]
	out := make([]*device.MaintenanceRecord, 0, len(recs))
	for _, rec := range recs {
		copied := *rec
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *Repository) Ping(context.Context) error { return nil }

func (r *Repository) Close() error { return nil }
