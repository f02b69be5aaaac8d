package appid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Defaults(t *testing.T) {
	t.Setenv(EnvBinaryName, "")

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "meshgate", identity.BinaryName)
	assert.Equal(t, "MESHGATE_", identity.EnvPrefix)
	assert.Equal(t, "meshgate", identity.TelemetryNamespace())
}

func TestGet_BinaryNameOverride(t *testing.T) {
	t.Setenv(EnvBinaryName, "mesh-gw")

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mesh-gw", identity.BinaryName)
	assert.Equal(t, "mesh_gw", identity.TelemetryNamespace())

	// the package default is never mutated
	assert.Equal(t, "meshgate", defaultIdentity.BinaryName)
}

func TestGet_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Get(ctx)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	var nilIdentity *Identity
	require.Error(t, nilIdentity.Validate())
	require.Error(t, (&Identity{BinaryName: "x"}).Validate())
	require.Error(t, (&Identity{BinaryName: "x", EnvPrefix: "X_"}).Validate())
	require.NoError(t, (&Identity{BinaryName: "x", EnvPrefix: "X_", ConfigName: "x"}).Validate())
}
