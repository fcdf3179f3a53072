// Package sqlite provides a SQLite-backed device repository for
// single-node deployments and edge gateways.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

// Repository implements device.Repository over a local SQLite file.
type Repository struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// initializes the schema.
func Open(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT,
		location TEXT,
		status TEXT NOT NULL,
		installation_date DATETIME,
		water_hardness_ppm REAL,
		target_temperature REAL,
		usage_intensity TEXT,
		component_health TEXT, -- JSON component -> health
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_records (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		type TEXT NOT NULL,
		date DATETIME NOT NULL,
		findings TEXT,
		FOREIGN KEY (device_id) REFERENCES devices(id)
	);

	CREATE INDEX IF NOT EXISTS idx_maint_device_date ON maintenance_records(device_id, date);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *Repository) Create(ctx context.Context, d *device.Device) error {
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = device.StatusActive
	}
	health, err := json.Marshal(d.ComponentHealth)
	if err != nil {
		return fmt.Errorf("marshal component health: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, model, location, status, installation_date,
			water_hardness_ppm, target_temperature, usage_intensity, component_health,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Model, d.Location, string(d.Status), d.InstallationDate,
		d.WaterHardnessPPM, d.TargetTemperature, d.UsageIntensity, string(health),
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*device.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, model, location, status, installation_date,
			water_hardness_ppm, target_temperature, usage_intensity, component_health,
			created_at, updated_at
		FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDeviceNotFoundError(id)
	}
	return d, err
}

func (r *Repository) List(ctx context.Context) ([]*device.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, model, location, status, installation_date,
			water_hardness_ppm, target_temperature, usage_intensity, component_health,
			created_at, updated_at
		FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*device.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, d *device.Device) error {
	d.UpdatedAt = time.Now()
	health, err := json.Marshal(d.ComponentHealth)
	if err != nil {
		return fmt.Errorf("marshal component health: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, model = ?, location = ?, status = ?,
			installation_date = ?, water_hardness_ppm = ?, target_temperature = ?,
			usage_intensity = ?, component_health = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.Model, d.Location, string(d.Status), d.InstallationDate,
		d.WaterHardnessPPM, d.TargetTemperature, d.UsageIntensity, string(health),
		d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewDeviceNotFoundError(d.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewDeviceNotFoundError(id)
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM maintenance_records WHERE device_id = ?`, id)
	return err
}

func (r *Repository) AddMaintenance(ctx context.Context, rec *device.MaintenanceRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO maintenance_records (id, device_id, type, date, findings)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.Type, rec.Date, rec.Findings)
	if err != nil {
		return fmt.Errorf("insert maintenance record: %w", err)
	}
	return nil
}

func (r *Repository) ListMaintenance(ctx context.Context, deviceID string) ([]*device.MaintenanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, type, date, findings
		FROM maintenance_records WHERE device_id = ? ORDER BY date`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list maintenance records: %w", err)
	}
	defer rows.Close()

	var out []*device.MaintenanceRecord
	for rows.Next() {
		rec := &device.MaintenanceRecord{}
		var findings sql.NullString
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Type, &rec.Date, &findings); err != nil {
			return nil, err
		}
		rec.Findings = findings.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repository) Close() error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*device.Device, error) {
	d := &device.Device{}
	var status string
	var model, location, intensity, health sql.NullString
	var installed sql.NullTime
	var hardness, target sql.NullFloat64

	err := row.Scan(&d.ID, &d.Name, &model, &location, &status, &installed,
		&hardness, &target, &intensity, &health, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = device.Status(status)
	d.Model = model.String
	d.Location = location.String
	d.UsageIntensity = intensity.String
	if installed.Valid {
		d.InstallationDate = installed.Time
	}
	d.WaterHardnessPPM = hardness.Float64
	d.TargetTemperature = target.Float64
	if health.Valid && health.String != "" && health.String != "null" {
		if err := json.Unmarshal([]byte(health.String), &d.ComponentHealth); err != nil {
			return nil, fmt.Errorf("unmarshal component health: %w", err)
		}
	}
	return d, nil
}
