package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor(t *testing.T) {
	d := NewDescriptor(DescriptorInfo{
		Name:         "gpx",
		Imports:      []string{".GPX", "gpx.gz"},
		Spatial:      true,
		Descriptions: map[string]string{"": "GPX file", "gpx.gz": "Compressed GPX file"},
	})
	assert.Equal(t, ImportCapable, d.Capability)
	assert.True(t, d.CanImport())
	assert.False(t, d.CanExport())
	assert.Equal(t, []string{"gpx", "gpx.gz"}, d.ImportFormats())
	assert.Empty(t, d.ExportFormats())
	assert.True(t, d.IsSpatialFormat(".gpx"))
	assert.False(t, d.IsSpatialFormat("csv"))
	assert.Equal(t, "GPX file", d.Description("gpx"))
	assert.Equal(t, "Compressed GPX file", d.Description("GPX.GZ"))

	ext, err := d.CheckImport("/tmp/Walk.GPX.gz")
	require.NoError(t, err)
	assert.Equal(t, "gpx.gz", ext)

	_, err = d.CheckImport("walk.kml")
	assert.ErrorIs(t, err, ErrFormat)
	_, err = d.CheckExport("walk.gpx")
	assert.ErrorIs(t, err, ErrFormat)

	// the returned slice is a copy
	d.ImportFormats()[0] = "kml"
	assert.Equal(t, "gpx", d.ImportFormats()[0])
}

func TestDescriptorBoth(t *testing.T) {
	d := NewDescriptor(DescriptorInfo{Name: "dbf", Imports: []string{"dbf"}, Exports: []string{"dbf"}})
	assert.Equal(t, Both, d.Capability)
	assert.False(t, d.IsSpatialFormat("dbf"))
}

func TestMatchExtension(t *testing.T) {
	exts := []string{"csv", "csv.gz", "gz"}
	assert.Equal(t, "csv.gz", MatchExtension("a.b/Cities.CSV.GZ", exts))
	assert.Equal(t, "gz", MatchExtension("cities.tar.gz", exts))
	assert.Equal(t, "", MatchExtension("csv", exts))
	assert.Equal(t, "", MatchExtension("cities.xcsv", exts))
}
