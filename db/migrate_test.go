package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMigrations_Ordered(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	assert.Equal(t, bootstrapVersion, all[0].Version)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
}

func TestMigrate_AppliesEachOnce(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(filepath.Join(t.TempDir(), "jobs.db"), nil)
	require.NoError(t, err)
	defer conn.Close()

	applied, err := AppliedVersions(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied, "fresh database")

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, Migrate(ctx, conn, zap.New(core).Sugar()))

	all, err := Migrations()
	require.NoError(t, err)
	assert.Len(t, logs.FilterMessage("Applied migration").All(), len(all))

	applied, err = AppliedVersions(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"000", "001"}, applied)

	// Second run is a no-op
	core, logs = observer.New(zap.InfoLevel)
	require.NoError(t, Migrate(ctx, conn, zap.New(core).Sugar()))
	assert.Zero(t, logs.Len())
}

func TestMigrate_ClosedDatabase(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "jobs.db"), nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	err = Migrate(context.Background(), conn, nil)
	require.Error(t, err)
	assert.True(t, IsDatabaseClosed(err))
}

func TestMigrate_Cancelled(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "jobs.db"), nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, Migrate(ctx, conn, nil))
}
