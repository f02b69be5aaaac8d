package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshrider/meshgate/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	dir := t.TempDir()

	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, ":memory:", dsn)

	path := filepath.Join(dir, "data", "meshgate.db")
	dsn, err = buildLibsqlDSN(config.StoreConfig{Path: path})
	require.NoError(t, err)
	require.Equal(t, "file:"+path, dsn)
	require.DirExists(t, filepath.Join(dir, "data"))

	dsn, err = buildLibsqlDSN(config.StoreConfig{URL: "libsql://fleet.turso.io", AuthToken: "tok"})
	require.NoError(t, err)
	require.Equal(t, "libsql://fleet.turso.io?authToken=tok", dsn)

	_, err = buildLibsqlDSN(config.StoreConfig{})
	require.Error(t, err)
}

func TestNilStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	require.Empty(t, s.Driver())
	require.Error(t, s.Migrate(nil))
}
