package gpx

import "github.com/darianmavgo/geoio/converters/common"

// GeometryColumn names the geometry column of every GPX table.
const GeometryColumn = "the_geom"

// SRID of every GPX geometry (WGS 84).
const SRID = 4326

// Output tables, in the order Tables reports them.
const (
	tableWaypoint = iota
	tableRoute
	tableRoutePoint
	tableTrack
	tableTrackSegment
	tableTrackPoint
	numTables
)

var tableSuffixes = [numTables]string{
	"_waypoint", "_route", "_routepoint", "_track", "_tracksegment", "_trackpoint",
}

// Point columns shared by waypoints, route points and track points.
const (
	colGeom = iota
	colID
	colLat
	colLon
	colEle
	colTime
	colMagvar
	colGeoidHeight
	colName
	colCmt
	colDesc
	colSrc
	colHref
	colHrefTitle
	colSym
	colType
	colFix
	colSat
	colHdop
	colVdop
	colPdop
	colAgeOfDGPSData
	colDGPSID
	colExtensions
	pointColumns
)

// Route and track columns.
const (
	lineGeom = iota
	lineID
	lineName
	lineCmt
	lineDesc
	lineSrc
	lineHref
	lineHrefTitle
	lineNumber
	lineType
	lineExtensions
	lineColumns
)

// Track segment columns.
const (
	segGeom = iota
	segID
	segExtensions
	segTrackID
	segColumns
)

// pointTags maps child elements of wpt, rtept and trkpt to their column.
var pointTags = map[string]int{
	"ele":           colEle,
	"time":          colTime,
	"magvar":        colMagvar,
	"geoidheight":   colGeoidHeight,
	"name":          colName,
	"cmt":           colCmt,
	"desc":          colDesc,
	"src":           colSrc,
	"url":           colHref,
	"urlname":       colHrefTitle,
	"sym":           colSym,
	"type":          colType,
	"fix":           colFix,
	"sat":           colSat,
	"hdop":          colHdop,
	"vdop":          colVdop,
	"pdop":          colPdop,
	"ageofdgpsdata": colAgeOfDGPSData,
	"dgpsid":        colDGPSID,
}

// lineTags maps child elements of rte and trk to their column.
var lineTags = map[string]int{
	"name":    lineName,
	"cmt":     lineCmt,
	"desc":    lineDesc,
	"src":     lineSrc,
	"url":     lineHref,
	"urlname": lineHrefTitle,
	"number":  lineNumber,
	"type":    lineType,
}

func geometryField(kind string) common.Field {
	return common.Field{Name: GeometryColumn, Type: common.TypeGeometry, GeometryKind: kind, SRID: SRID}
}

func pointSchema(extra ...common.Field) common.Schema {
	s := common.Schema{
		geometryField("POINT"),
		{Name: "id", Type: common.TypeInteger},
		{Name: "lat", Type: common.TypeDouble},
		{Name: "lon", Type: common.TypeDouble},
		{Name: "ele", Type: common.TypeDouble},
		{Name: "time", Type: common.TypeText},
		{Name: "magvar", Type: common.TypeDouble},
		{Name: "geoidheight", Type: common.TypeDouble},
		{Name: "name", Type: common.TypeText},
		{Name: "cmt", Type: common.TypeText},
		{Name: "description", Type: common.TypeText},
		{Name: "src", Type: common.TypeText},
		{Name: "href", Type: common.TypeText},
		{Name: "hreftitle", Type: common.TypeText},
		{Name: "sym", Type: common.TypeText},
		{Name: "type", Type: common.TypeText},
		{Name: "fix", Type: common.TypeText},
		{Name: "sat", Type: common.TypeInteger},
		{Name: "hdop", Type: common.TypeDouble},
		{Name: "vdop", Type: common.TypeDouble},
		{Name: "pdop", Type: common.TypeDouble},
		{Name: "ageofdgpsdata", Type: common.TypeDouble},
		{Name: "dgpsid", Type: common.TypeInteger},
		{Name: "extensions", Type: common.TypeBoolean},
	}
	return append(s, extra...)
}

func lineSchema(kind string) common.Schema {
	return common.Schema{
		geometryField(kind),
		{Name: "id", Type: common.TypeInteger},
		{Name: "name", Type: common.TypeText},
		{Name: "cmt", Type: common.TypeText},
		{Name: "description", Type: common.TypeText},
		{Name: "src", Type: common.TypeText},
		{Name: "href", Type: common.TypeText},
		{Name: "hreftitle", Type: common.TypeText},
		{Name: "number", Type: common.TypeInteger},
		{Name: "type", Type: common.TypeText},
		{Name: "extensions", Type: common.TypeBoolean},
	}
}

var tableDefs = []common.TableDef{
	tableWaypoint:   {Suffix: tableSuffixes[tableWaypoint], Schema: pointSchema()},
	tableRoute:      {Suffix: tableSuffixes[tableRoute], Schema: lineSchema("LINESTRING")},
	tableRoutePoint: {Suffix: tableSuffixes[tableRoutePoint], Schema: pointSchema(common.Field{Name: "route_id", Type: common.TypeInteger})},
	tableTrack:      {Suffix: tableSuffixes[tableTrack], Schema: lineSchema("MULTILINESTRING")},
	tableTrackSegment: {Suffix: tableSuffixes[tableTrackSegment], Schema: common.Schema{
		geometryField("LINESTRING"),
		{Name: "id", Type: common.TypeInteger},
		{Name: "extensions", Type: common.TypeBoolean},
		{Name: "id_track", Type: common.TypeInteger},
	}},
	tableTrackPoint: {Suffix: tableSuffixes[tableTrackPoint], Schema: pointSchema(common.Field{Name: "track_segment_id", Type: common.TypeInteger})},
}
