// Package device defines the water heater fleet domain model and the
// repository contract implemented by the pluggable storage backends.
package device

import (
	"context"
	"time"
)

// Status is the operational state of a device.
type Status string

const (
	StatusActive      Status = "active"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// Device is one managed water heater (or related vending-machine asset).
type Device struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Model             string             `json:"model,omitempty"`
	Location          string             `json:"location,omitempty"`
	Status            Status             `json:"status"`
	InstallationDate  time.Time          `json:"installation_date,omitempty"`
	WaterHardnessPPM  float64            `json:"water_hardness_ppm,omitempty"`
	TargetTemperature float64            `json:"target_temperature,omitempty"`
	UsageIntensity    string             `json:"usage_intensity,omitempty"`
	ComponentHealth   map[string]float64 `json:"component_health,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// MaintenanceRecord is one historical maintenance event for a device.
type MaintenanceRecord struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Type     string    `json:"type"`
	Date     time.Time `json:"date"`
	Findings string    `json:"findings,omitempty"`
}

// Repository is the CRUD contract for device metadata and maintenance
// history. Implementations exist for in-memory, SQLite, Postgres, MongoDB,
// and AWS IoT device shadow backends.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	Get(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]*Device, error)
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, id string) error

	AddMaintenance(ctx context.Context, rec *MaintenanceRecord) error
	ListMaintenance(ctx context.Context, deviceID string) ([]*MaintenanceRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
