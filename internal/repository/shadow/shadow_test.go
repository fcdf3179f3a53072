package shadow

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

// fakeClient stores shadow payloads in memory, keyed by thing/shadow name.
type fakeClient struct {
	shadows map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{shadows: map[string][]byte{}}
}

func keyFor(thing, shadow *string) string {
	k := aws.ToString(thing)
	if s := aws.ToString(shadow); s != "" {
		k += "~" + s
	}
	return k
}

func (f *fakeClient) GetThingShadow(_ context.Context, params *iotdataplane.GetThingShadowInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.GetThingShadowOutput, error) {
	payload, ok := f.shadows[keyFor(params.ThingName, params.ShadowName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such shadow")}
	}
	return &iotdataplane.GetThingShadowOutput{Payload: payload}, nil
}

func (f *fakeClient) UpdateThingShadow(_ context.Context, params *iotdataplane.UpdateThingShadowInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.UpdateThingShadowOutput, error) {
	f.shadows[keyFor(params.ThingName, params.ShadowName)] = params.Payload
	return &iotdataplane.UpdateThingShadowOutput{}, nil
}

func (f *fakeClient) DeleteThingShadow(_ context.Context, params *iotdataplane.DeleteThingShadowInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.DeleteThingShadowOutput, error) {
	k := aws.ToString(params.ThingName)
	if _, ok := f.shadows[k]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such shadow")}
	}
	delete(f.shadows, k)
	return &iotdataplane.DeleteThingShadowOutput{}, nil
}

func TestShadowCreateGetList(t *testing.T) {
	client := newFakeClient()
	repo := New(client, "test-fleet")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-b", Name: "Second"}))
	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-a", Name: "First"}))

	got, err := repo.Get(ctx, "wh-a")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Name)
	assert.Equal(t, device.StatusActive, got.Status)

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "wh-a", devices[0].ID)
	assert.Equal(t, "wh-b", devices[1].ID)
}

func TestShadowCreateDuplicate(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))
	err := repo.Create(ctx, &device.Device{ID: "wh-1", Name: "b"})
	assert.True(t, errors.IsDuplicate(err))
}

func TestShadowGetNotFound(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")

	_, err := repo.Get(context.Background(), "wh-ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestShadowUpdatePreservesCreatedAt(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")
	ctx := context.Background()

	d := &device.Device{ID: "wh-1", Name: "before"}
	require.NoError(t, repo.Create(ctx, d))
	created := d.CreatedAt

	require.NoError(t, repo.Update(ctx, &device.Device{ID: "wh-1", Name: "after"}))

	got, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)
}

func TestShadowDelete(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))
	require.NoError(t, repo.Delete(ctx, "wh-1"))

	_, err := repo.Get(ctx, "wh-1")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(repo.Delete(ctx, "wh-1")))

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestShadowListSkipsStaleIndexEntries(t *testing.T) {
	client := newFakeClient()
	repo := New(client, "test-fleet")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))
	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-2", Name: "b"}))

	// Drop wh-1's shadow behind the repository's back; the index still
	// references it.
	delete(client.shadows, "wh-1")

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "wh-2", devices[0].ID)
}

func TestShadowMaintenance(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))

	later := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AddMaintenance(ctx, &device.MaintenanceRecord{
		ID: "m2", DeviceID: "wh-1", Type: "descaling", Date: later,
	}))
	require.NoError(t, repo.AddMaintenance(ctx, &device.MaintenanceRecord{
		ID: "m1", DeviceID: "wh-1", Type: "installation", Date: earlier,
	}))

	recs, err := repo.ListMaintenance(ctx, "wh-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "installation", recs[0].Type)

	err = repo.AddMaintenance(ctx, &device.MaintenanceRecord{DeviceID: "wh-ghost", Type: "descaling"})
	assert.True(t, errors.IsNotFound(err))
}

func TestShadowPing(t *testing.T) {
	repo := New(newFakeClient(), "test-fleet")
	// An absent index shadow is an empty fleet, not an error.
	assert.NoError(t, repo.Ping(context.Background()))
}
