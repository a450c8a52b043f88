package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_school_tables.up.sql":   {Data: []byte("SELECT 2")},
		"0002_school_tables.down.sql": {Data: []byte("SELECT -2")},
		"0001_directory.up.sql":       {Data: []byte("SELECT 1")},
		"0010_late.up.sql":            {Data: []byte("SELECT 10")},
		"README.md":                   {Data: []byte("notes")},
		"nested/0003_skip.up.sql":     {Data: []byte("SELECT 3")},
	}

	versions, err := upVersions(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_directory", "0002_school_tables", "0010_late"}, versions)
}

func TestUpVersionsEmpty(t *testing.T) {
	versions, err := upVersions(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, versions)
}
