package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTestDB(t *testing.T) {
	conn := CreateTestDB(t)

	var fk int
	require.NoError(t, conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestCreateMigratedTestDB(t *testing.T) {
	conn := CreateMigratedTestDB(t)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM backend_jobs").Scan(&n))
	assert.Zero(t, n)
}
