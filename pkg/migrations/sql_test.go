package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations_PairedPerDriver(t *testing.T) {
	for _, dir := range []string{"postgres", "sqlserver"} {
		entries, err := fs.ReadDir(sqlFiles, dir)
		require.NoError(t, err)

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.Contains(t, names, "000001_create_people_table.up.sql", dir)
		assert.Contains(t, names, "000001_create_people_table.down.sql", dir)
	}
}

func TestUp_UnknownDriver(t *testing.T) {
	err := Up(nil, "sqlite")
	assert.ErrorContains(t, err, "no migrations")
}
