package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heater-fleet/internal/device"
	"heater-fleet/pkg/errors"
)

func TestCreateAndGet(t *testing.T) {
	repo := New()
	ctx := context.Background()

	d := &device.Device{ID: "wh-1", Name: "Basement heater", WaterHardnessPPM: 120}
	require.NoError(t, repo.Create(ctx, d))
	assert.Equal(t, device.StatusActive, d.Status)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "Basement heater", got.Name)
	assert.InDelta(t, 120.0, got.WaterHardnessPPM, 1e-9)
}

func TestCreateGeneratesID(t *testing.T) {
	repo := New()

	d := &device.Device{Name: "Unnamed"}
	require.NoError(t, repo.Create(context.Background(), d))
	assert.NotEmpty(t, d.ID)
	assert.Contains(t, d.ID, "wh-")
}

func TestCreateDuplicate(t *testing.T) {
	repo := New()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "a"}))
	err := repo.Create(ctx, &device.Device{ID: "wh-1", Name: "b"})
	require.Error(t, err)
	assert.True(t, errors.IsDuplicate(err))
}

func TestGetNotFound(t *testing.T) {
	repo := New()

	_, err := repo.Get(context.Background(), "wh-missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetReturnsCopy(t *testing.T) {
	repo := New()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1", Name: "original"}))

	got, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Name)
}

func TestUpdate(t *testing.T) {
	repo := New()
	ctx := context.Background()

	d := &device.Device{ID: "wh-1", Name: "before"}
	require.NoError(t, repo.Create(ctx, d))
	created := d.CreatedAt

	require.NoError(t, repo.Update(ctx, &device.Device{ID: "wh-1", Name: "after"}))

	got, err := repo.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, created, got.CreatedAt, "created timestamp is preserved")

	err = repo.Update(ctx, &device.Device{ID: "wh-missing"})
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteRemovesMaintenance(t *testing.T) {
	repo := New()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1"}))
	require.NoError(t, repo.AddMaintenance(ctx, &device.MaintenanceRecord{
		DeviceID: "wh-1", Type: "descaling", Date: time.Now(),
	}))

	require.NoError(t, repo.Delete(ctx, "wh-1"))
	assert.True(t, errors.IsNotFound(repo.Delete(ctx, "wh-1")))

	recs, err := repo.ListMaintenance(ctx, "wh-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestListSortedByID(t *testing.T) {
	repo := New()
	ctx := context.Background()

	for _, id := range []string{"wh-c", "wh-a", "wh-b"} {
		require.NoError(t, repo.Create(ctx, &device.Device{ID: id}))
	}

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "wh-a", devices[0].ID)
	assert.Equal(t, "wh-b", devices[1].ID)
	assert.Equal(t, "wh-c", devices[2].ID)
}

func TestMaintenanceSortedByDate(t *testing.T) {
	repo := New()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &device.Device{ID: "wh-1"}))

	later := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AddMaintenance(ctx, &device.MaintenanceRecord{DeviceID: "wh-1", Type: "descaling", Date: later}))
	require.NoError(t, repo.AddMaintenance(ctx, &device.MaintenanceRecord{DeviceID: "wh-1", Type: "installation", Date: earlier}))

	recs, err := repo.ListMaintenance(ctx, "wh-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "installation", recs[0].Type)
	assert.NotEmpty(t, recs[0].ID)

	err = repo.AddMaintenance(ctx, &device.MaintenanceRecord{DeviceID: "wh-missing", Type: "descaling"})
	assert.True(t, errors.IsNotFound(err))
}
