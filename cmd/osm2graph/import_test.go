package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportConfigFlags(t *testing.T) {
	flags := importCmd.Flags()
	require.NoError(t, flags.Set("file", "city.osm.zst"))
	require.NoError(t, flags.Set("units", "m"))
	require.NoError(t, flags.Set("tags", "primary, secondary,,tertiary"))
	require.NoError(t, flags.Set("bbox", "37.3,55.5,37.9,56.0"))
	require.NoError(t, flags.Set("index", "leveldb"))

	cfg, err := importConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, "city.osm.zst", cfg.Source.File)
	assert.Equal(t, "m", cfg.Output.Units)
	assert.Equal(t, []string{"primary", "secondary", "tertiary"}, cfg.Profile.Tags)
	assert.Equal(t, []float64{37.3, 55.5, 37.9, 56.0}, cfg.Source.BBox)
	assert.Equal(t, "leveldb", cfg.Import.Index)
	// not set explicitly
	assert.Equal(t, "wkt", cfg.Output.GeomFormat)

	require.NoError(t, flags.Set("geomf", "kml"))
	_, err = importConfig(flags)
	assert.Error(t, err)
	require.NoError(t, flags.Set("geomf", "wkt"))
}
