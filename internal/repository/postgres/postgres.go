// Package postgres provides a PostgreSQL-backed device repository for
// multi-instance deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

// Repository implements device.Repository over PostgreSQL.
type Repository struct {
	db *sql.DB
}

// Open connects to Postgres with the given DSN and initializes the schema.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

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
		model TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		installation_date TIMESTAMPTZ,
		water_hardness_ppm DOUBLE PRECISION NOT NULL DEFAULT 0,
		target_temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_intensity TEXT NOT NULL DEFAULT '',
		component_health JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_records (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		findings TEXT NOT NULL DEFAULT ''
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.Name, d.Model, d.Location, string(d.Status), nullTime(d.InstallationDate),
		d.WaterHardnessPPM, d.TargetTemperature, d.UsageIntensity, health,
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
		FROM devices WHERE id = $1`, id)
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
		UPDATE devices SET name = $1, model = $2, location = $3, status = $4,
			installation_date = $5, water_hardness_ppm = $6, target_temperature = $7,
			usage_intensity = $8, component_health = $9, updated_at = $10
		WHERE id = $11`,
		d.Name, d.Model, d.Location, string(d.Status), nullTime(d.InstallationDate),
		d.WaterHardnessPPM, d.TargetTemperature, d.UsageIntensity, health,
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewDeviceNotFoundError(id)
	}
	return nil
}

func (r *Repository) AddMaintenance(ctx context.Context, rec *device.MaintenanceRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO maintenance_records (id, device_id, type, date, findings)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.DeviceID, rec.Type, rec.Date, rec.Findings)
	if err != nil {
		return fmt.Errorf("insert maintenance record: %w", err)
	}
	return nil
}

func (r *Repository) ListMaintenance(ctx context.Context, deviceID string) ([]*device.MaintenanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, type, date, findings
		FROM maintenance_records WHERE device_id = $1 ORDER BY date`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list maintenance records: %w", err)
	}
	defer rows.Close()

	var out []*device.MaintenanceRecord
	for rows.Next() {
		rec := &device.MaintenanceRecord{}
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Type, &rec.Date, &rec.Findings); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repository) Close() error { return r.db.Close() }

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*device.Device, error) {
	d := &device.Device{}
	var status string
	var installed sql.NullTime
	var health []byte

	err := row.Scan(&d.ID, &d.Name, &d.Model, &d.Location, &status, &installed,
		&d.WaterHardnessPPM, &d.TargetTemperature, &d.UsageIntensity, &health,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = device.Status(status)
	if installed.Valid {
		d.InstallationDate = installed.Time
	}
	if len(health) > 0 && string(health) != "null" {
		if err := json.Unmarshal(health, &d.ComponentHealth); err != nil {
			return nil, fmt.Errorf("unmarshal component health: %w", err)
		}
	}
	return d, nil
}
