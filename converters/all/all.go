// Package all wires every built-in file driver into one registry.
package all

import (
	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/csv"
	"github.com/darianmavgo/geoio/converters/dbf"
	"github.com/darianmavgo/geoio/converters/excel"
	"github.com/darianmavgo/geoio/converters/geojson"
	"github.com/darianmavgo/geoio/converters/gpx"
	"github.com/darianmavgo/geoio/converters/kml"
	"github.com/darianmavgo/geoio/converters/osm"
	"github.com/darianmavgo/geoio/converters/shp"
	"github.com/darianmavgo/geoio/converters/zip"
)

// NewRegistry returns a registry holding the built-in drivers. The zip
// driver imports archive members through the same registry.
func NewRegistry() *converters.Registry {
	r := converters.NewRegistry(
		dbf.New(),
		shp.New(),
		csv.New(),
		csv.NewTSV(),
		gpx.New(),
		osm.New(),
		excel.New(),
		geojson.New(),
		kml.New(),
	)
	if err := r.Register(zip.New(r)); err != nil {
		panic(err)
	}
	return r
}
