// Package shadow provides a device repository backed by AWS IoT device
// shadows. Each device's metadata and maintenance history live in the
// reported state of a classic shadow; a named "fleet-index" shadow tracks
// the set of registered device IDs so the fleet can be listed without the
// IoT control-plane API.
package shadow

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane/types"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

const indexShadowName = "fleet-index"

// Client is the subset of the IoT data-plane API the repository uses.
type Client interface {
	GetThingShadow(ctx context.Context, params *iotdataplane.GetThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.GetThingShadowOutput, error)
	UpdateThingShadow(ctx context.Context, params *iotdataplane.UpdateThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.UpdateThingShadowOutput, error)
	DeleteThingShadow(ctx context.Context, params *iotdataplane.DeleteThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.DeleteThingShadowOutput, error)
}

// Repository implements device.Repository over AWS IoT device shadows.
type Repository struct {
	client     Client
	indexThing string
}

// Open loads the default AWS configuration and connects to the IoT data
// plane. indexThing is the thing whose named shadow holds the fleet index.
func Open(ctx context.Context, indexThing string) (*Repository, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(iotdataplane.NewFromConfig(cfg), indexThing), nil
}

// New creates a repository over an existing data-plane client.
func New(client Client, indexThing string) *Repository {
	if indexThing == "" {
		indexThing = "heater-fleet"
	}
	return &Repository{client: client, indexThing: indexThing}
}

// shadowState is the reported-state payload stored per device.
type shadowState struct {
	Device      *device.Device              `json:"device"`
	Maintenance []*device.MaintenanceRecord `json:"maintenance,omitempty"`
}

type shadowDoc struct {
	State struct {
		Reported json.RawMessage `json:"reported"`
	} `json:"state"`
}

func (r *Repository) getState(ctx context.Context, deviceID string) (*shadowState, error) {
	out, err := r.client.GetThingShadow(ctx, &iotdataplane.GetThingShadowInput{
		ThingName: aws.String(deviceID),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if stderrors.As(err, &nf) {
			return nil, errors.NewDeviceNotFoundError(deviceID)
		}
		return nil, fmt.Errorf("get thing shadow: %w", err)
	}
	var doc shadowDoc
	if err := json.Unmarshal(out.Payload, &doc); err != nil {
		return nil, fmt.Errorf("decode shadow document: %w", err)
	}
	var state shadowState
	if len(doc.State.Reported) > 0 {
		if err := json.Unmarshal(doc.State.Reported, &state); err != nil {
			return nil, fmt.Errorf("decode reported state: %w", err)
		}
	}
	if state.Device == nil {
		return nil, errors.NewDeviceNotFoundError(deviceID)
	}
	return &state, nil
}

func (r *Repository) putState(ctx context.Context, deviceID string, state *shadowState) error {
	payload, err := json.Marshal(map[string]any{
		"state": map[string]any{"reported": state},
	})
	if err != nil {
		return fmt.Errorf("encode shadow state: %w", err)
	}
	_, err = r.client.UpdateThingShadow(ctx, &iotdataplane.UpdateThingShadowInput{
		ThingName: aws.String(deviceID),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("update thing shadow: %w", err)
	}
	return nil
}

func (r *Repository) readIndex(ctx context.Context) (map[string]bool, error) {
	out, err := r.client.GetThingShadow(ctx, &iotdataplane.GetThingShadowInput{
		ThingName:  aws.String(r.indexThing),
		ShadowName: aws.String(indexShadowName),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if stderrors.As(err, &nf) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("get fleet index shadow: %w", err)
	}
	var doc struct {
		State struct {
			Reported struct {
				Devices []string `json:"devices"`
			} `json:"reported"`
		} `json:"state"`
	}
	if err := json.Unmarshal(out.Payload, &doc); err != nil {
		return nil, fmt.Errorf("decode fleet index: %w", err)
	}
	ids := make(map[string]bool, len(doc.State.Reported.Devices))
	for _, id := range doc.State.Reported.Devices {
		ids[id] = true
	}
	return ids, nil
}

func (r *Repository) writeIndex(ctx context.Context, ids map[string]bool) error {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	payload, err := json.Marshal(map[string]any{
		"state": map[string]any{"reported": map[string]any{"devices": list}},
	})
	if err != nil {
		return fmt.Errorf("encode fleet index: %w", err)
	}
	_, err = r.client.UpdateThingShadow(ctx, &iotdataplane.UpdateThingShadowInput{
		ThingName:  aws.String(r.indexThing),
		ShadowName: aws.String(indexShadowName),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("update fleet index shadow: %w", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, d *device.Device) error {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	if ids[d.ID] {
		return errors.NewDuplicateDeviceError(d.ID)
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = device.StatusActive
	}
	if err := r.putState(ctx, d.ID, &shadowState{Device: d}); err != nil {
		return err
	}
	ids[d.ID] = true
	return r.writeIndex(ctx, ids)
}

func (r *Repository) Get(ctx context.Context, id string) (*device.Device, error) {
	state, err := r.getState(ctx, id)
	if err != nil {
		return nil, err
	}
	return state.Device, nil
}

func (r *Repository) List(ctx context.Context) ([]*device.Device, error) {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make([]*device.Device, 0, len(sorted))
	for _, id := range sorted {
		state, err := r.getState(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue // index is ahead of a deleted shadow
			}
			return nil, err
		}
		out = append(out, state.Device)
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, d *device.Device) error {
	state, err := r.getState(ctx, d.ID)
	if err != nil {
		return err
	}
	d.CreatedAt = state.Device.CreatedAt
	d.UpdatedAt = time.Now()
	state.Device = d
	return r.putState(ctx, d.ID, state)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	if !ids[id] {
		return errors.NewDeviceNotFoundError(id)
	}
	if _, err := r.client.DeleteThingShadow(ctx, &iotdataplane.DeleteThingShadowInput{
		ThingName: aws.String(id),
	}); err != nil {
		var nf *types.ResourceNotFoundException
		if !stderrors.As(err, &nf) {
			return fmt.Errorf("delete thing shadow: %w", err)
		}
	}
	delete(ids, id)
	return r.writeIndex(ctx, ids)
}

func (r *Repository) AddMaintenance(ctx context.Context, rec *device.MaintenanceRecord) error {
	state, err := r.getState(ctx, rec.DeviceID)
	if err != nil {
		return err
	}
	state.Maintenance = append(state.Maintenance, rec)
	return r.putState(ctx, rec.DeviceID, state)
}

func (r *Repository) ListMaintenance(ctx context.Context, deviceID string) ([]*device.MaintenanceRecord, error) {
	state, err := r.getState(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	out := append([]*device.MaintenanceRecord(nil), state.Maintenance...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	_, err := r.readIndex(ctx)
	return err
}

func (r *Repository) Close() error { return nil }
