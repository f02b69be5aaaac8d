//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshrider/meshgate/internal/config"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestOpenFileStoreCreatesDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "meshgate.db")

	store, err := Open(ctx, config.StoreConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Close())
}

func TestDeviceCRUD(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertDevice(ctx, Device{Address: "10.223.106.148", Name: "gateway-node"}, now))
	require.NoError(t, store.UpsertDevice(ctx, Device{Address: "10.223.106.150", Name: "relay", Notes: "roof"}, now))

	device, err := store.GetDevice(ctx, "10.223.106.148")
	require.NoError(t, err)
	require.Equal(t, "gateway-node", device.Name)
	require.Empty(t, device.Fingerprint)
	require.Equal(t, now, device.CreatedAt)
	require.Nil(t, device.LastSeenAt)

	// Partial update keeps stored fields.
	later := now.Add(time.Hour)
	require.NoError(t, store.UpsertDevice(ctx, Device{Address: "10.223.106.150", Fingerprint: "ab"}, later))
	device, err = store.GetDevice(ctx, "10.223.106.150")
	require.NoError(t, err)
	require.Equal(t, "relay", device.Name)
	require.Equal(t, "roof", device.Notes)
	require.Equal(t, "ab", device.Fingerprint)
	require.Equal(t, now, device.CreatedAt)
	require.Equal(t, later, device.UpdatedAt)

	devices, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "10.223.106.148", devices[0].Address)

	pins, err := store.Pins(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"10.223.106.150": "ab"}, pins)

	require.NoError(t, store.SetFingerprint(ctx, "10.223.106.148", "cd", later))
	require.NoError(t, store.TouchDevice(ctx, "10.223.106.148", later))
	device, err = store.GetDevice(ctx, "10.223.106.148")
	require.NoError(t, err)
	require.Equal(t, "cd", device.Fingerprint)
	require.NotNil(t, device.LastSeenAt)
	require.Equal(t, later, *device.LastSeenAt)

	require.NoError(t, store.DeleteDevice(ctx, "10.223.106.148"))
	_, err = store.GetDevice(ctx, "10.223.106.148")
	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.ErrorIs(t, store.DeleteDevice(ctx, "10.223.106.148"), ErrDeviceNotFound)
	require.ErrorIs(t, store.SetFingerprint(ctx, "10.9.9.9", "ef", later), ErrDeviceNotFound)
}

func TestUpsertDeviceRequiresAddress(t *testing.T) {
	store := openMemoryStore(t)
	require.Error(t, store.UpsertDevice(context.Background(), Device{Name: "x"}, time.Now()))
}
