// Package mongo provides a MongoDB-backed device repository, used where
// the fleet metadata lives alongside an existing document store.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

// Repository implements device.Repository over MongoDB collections.
type Repository struct {
	client  *mongo.Client
	devices *mongo.Collection
	maint   *mongo.Collection
}

// Open connects to MongoDB and prepares the fleet collections.
func Open(ctx context.Context, uri, database string) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	db := client.Database(database)
	r := &Repository{
		client:  client,
		devices: db.Collection("devices"),
		maint:   db.Collection("maintenance_records"),
	}

	idx := mongo.IndexModel{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "date", Value: 1}}}
	if _, err := r.maint.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("create maintenance index: %w", err)
	}
	return r, nil
}

type deviceDoc struct {
	ID                string             `bson:"_id"`
	Name              string             `bson:"name"`
	Model             string             `bson:"model,omitempty"`
	Location          string             `bson:"location,omitempty"`
	Status            string             `bson:"status"`
	InstallationDate  time.Time          `bson:"installation_date,omitempty"`
	WaterHardnessPPM  float64            `bson:"water_hardness_ppm,omitempty"`
	TargetTemperature float64            `bson:"target_temperature,omitempty"`
	UsageIntensity    string             `bson:"usage_intensity,omitempty"`
	ComponentHealth   map[string]float64 `bson:"component_health,omitempty"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

func toDoc(d *device.Device) deviceDoc {
	return deviceDoc{
		ID:                d.ID,
		Name:              d.Name,
		Model:             d.Model,
		Location:          d.Location,
		Status:            string(d.Status),
		InstallationDate:  d.InstallationDate,
		WaterHardnessPPM:  d.WaterHardnessPPM,
		TargetTemperature: d.TargetTemperature,
		UsageIntensity:    d.UsageIntensity,
		ComponentHealth:   d.ComponentHealth,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func fromDoc(doc deviceDoc) *device.Device {
	return &device.Device{
		ID:                doc.ID,
		Name:              doc.Name,
		Model:             doc.Model,
		Location:          doc.Location,
		Status:            device.Status(doc.Status),
		InstallationDate:  doc.InstallationDate,
		WaterHardnessPPM:  doc.WaterHardnessPPM,
		TargetTemperature: doc.TargetTemperature,
		UsageIntensity:    doc.UsageIntensity,
		ComponentHealth:   doc.ComponentHealth,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func (r *Repository) Create(ctx context.Context, d *device.Device) error {
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = device.StatusActive
	}
	if _, err := r.devices.InsertOne(ctx, toDoc(d)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.NewDuplicateDeviceError(d.ID)
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*device.Device, error) {
	var doc deviceDoc
	err := r.devices.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NewDeviceNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *Repository) List(ctx context.Context) ([]*device.Device, error) {
	cur, err := r.devices.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer cur.Close(ctx)

	var out []*device.Device
	for cur.Next(ctx) {
		var doc deviceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode device: %w", err)
		}
		out = append(out, fromDoc(doc))
	}
	return out, cur.Err()
}

func (r *Repository) Update(ctx context.Context, d *device.Device) error {
	d.UpdatedAt = time.Now()
	res, err := r.devices.ReplaceOne(ctx, bson.M{"_id": d.ID}, toDoc(d))
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if res.MatchedCount == 0 {
		return errors.NewDeviceNotFoundError(d.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.devices.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if res.DeletedCount == 0 {
		return errors.NewDeviceNotFoundError(id)
	}
	_, err = r.maint.DeleteMany(ctx, bson.M{"device_id": id})
	return err
}

func (r *Repository) AddMaintenance(ctx context.Context, rec *device.MaintenanceRecord) error {
	doc := bson.M{
		"_id":       rec.ID,
		"device_id": rec.DeviceID,
		"type":      rec.Type,
		"date":      rec.Date,
		"findings":  rec.Findings,
	}
	if _, err := r.maint.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert maintenance record: %w", err)
	}
	return nil
}

func (r *Repository) ListMaintenance(ctx context.Context, deviceID string) ([]*device.MaintenanceRecord, error) {
	cur, err := r.maint.Find(ctx, bson.M{"device_id": deviceID},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list maintenance records: %w", err)
	}
	defer cur.Close(ctx)

	var out []*device.MaintenanceRecord
	for cur.Next(ctx) {
		var doc struct {
			ID       string    `bson:"_id"`
			DeviceID string    `bson:"device_id"`
			Type     string    `bson:"type"`
			Date     time.Time `bson:"date"`
			Findings string    `bson:"findings"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode maintenance record: %w", err)
		}
		out = append(out, &device.MaintenanceRecord{
			ID: doc.ID, DeviceID: doc.DeviceID, Type: doc.Type,
			Date: doc.Date, Findings: doc.Findings,
		})
	}
	return out, cur.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
