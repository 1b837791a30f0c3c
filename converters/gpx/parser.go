// Package gpx imports GPS Exchange Format documents into six tables:
// waypoints, routes, route points, tracks, track segments and track points.
package gpx

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// point is an open wpt, rtept or trkpt element.
type point struct {
	table  int
	values common.Row
	coord  geom.Coord
	hasEle bool
}

// path collects the vertices of a route or a track segment.
type path struct {
	coords []geom.Coord
	allZ   bool
}

func newPath() *path { return &path{allZ: true} }

func (p *path) add(pt *point) {
	p.coords = append(p.coords, pt.coord)
	p.allZ = p.allZ && pt.hasEle
}

func (p *path) layout() geom.Layout {
	if p.allZ && len(p.coords) > 0 {
		return geom.XYZ
	}
	return geom.XY
}

// line is an open rte or trk element.
type line struct {
	table    int
	values   common.Row
	route    *path   // rte only
	segments []*path // trk only
}

// segment is an open trkseg element.
type segment struct {
	values common.Row
	path   *path
}

// Parser streams the rows of a GPX document. Rows are produced when the
// element that owns them closes, so the points of a route or a track
// segment precede the route or segment row itself.
type Parser struct {
	dec      *xml.Decoder
	input    *common.InputFile
	progress common.Progress

	stack    []string
	text     strings.Builder
	rootSeen bool
	done     bool
	inLink   bool

	point   *point
	line    *line
	segment *segment

	ids     [numTables]int64
	pending []common.Result
	rows    int64
}

var _ common.Source = (*Parser)(nil)

// NewParser reads a GPX document from r. A non UTF-8 document must
// declare its charset in the XML prolog.
func NewParser(r io.Reader) *Parser {
	return &Parser{dec: common.NewXMLDecoder(r), progress: common.NoProgress}
}

// Open opens path, decompressing by suffix.
func Open(path string, progress common.Progress) (*Parser, error) {
	in, err := common.OpenInput(path)
	if err != nil {
		return nil, err
	}
	p := NewParser(in)
	p.input = in
	if progress != nil {
		p.progress = progress
	}
	return p, nil
}

func (p *Parser) Tables() []common.TableDef {
	return append([]common.TableDef(nil), tableDefs...)
}

func (p *Parser) Next() (common.Result, error) {
	for len(p.pending) == 0 {
		if p.done {
			p.progress.ProgressTo(1)
			return common.Result{State: common.StateEnd}, nil
		}
		if err := p.step(); err != nil {
			return common.Result{}, err
		}
	}
	res := p.pending[0]
	p.pending = p.pending[1:]
	p.rows++
	if p.rows%1000 == 0 && p.input != nil {
		p.progress.ProgressTo(p.input.Fraction())
	}
	return res, nil
}

func (p *Parser) Close() error {
	if p.input == nil {
		return nil
	}
	err := p.input.Close()
	p.input = nil
	return err
}

func (p *Parser) formatError(format string, args ...any) error {
	line, _ := p.dec.InputPos()
	return common.FormatError("gpx.read", "line %d: "+format, append([]any{line}, args...)...)
}

func (p *Parser) step() error {
	tok, err := p.dec.Token()
	if errors.Is(err, io.EOF) {
		if len(p.stack) > 0 {
			return p.formatError("unclosed element <%s>", p.stack[len(p.stack)-1])
		}
		if !p.rootSeen {
			return common.FormatError("gpx.read", "document has no <gpx> element")
		}
		p.done = true
		return nil
	}
	if err != nil {
		return common.XMLError("gpx.read", err)
	}

	switch t := tok.(type) {
	case xml.StartElement:
		return p.start(t)
	case xml.EndElement:
		return p.end(strings.ToLower(t.Name.Local))
	case xml.CharData:
		p.text.Write(t)
	}
	return nil
}

func (p *Parser) start(t xml.StartElement) error {
	name := strings.ToLower(t.Name.Local)
	if !p.rootSeen {
		if name != "gpx" {
			return p.formatError("root element is <%s>, not <gpx>", t.Name.Local)
		}
		p.rootSeen = true
	}
	p.text.Reset()

	if err := p.checkNesting(name); err != nil {
		return err
	}

	switch name {
	case "extensions":
		p.markExtensions()
		if err := p.dec.Skip(); err != nil {
			return p.formatError("%v", err)
		}
		return nil
	case "wpt":
		if err := p.openPoint(tableWaypoint, t); err != nil {
			return err
		}
	case "rtept":
		if p.line == nil || p.line.table != tableRoute {
			return p.formatError("<rtept> outside <rte>")
		}
		if err := p.openPoint(tableRoutePoint, t); err != nil {
			return err
		}
	case "trkpt":
		if p.segment == nil {
			return p.formatError("<trkpt> outside <trkseg>")
		}
		if err := p.openPoint(tableTrackPoint, t); err != nil {
			return err
		}
	case "rte":
		p.line = &line{table: tableRoute, values: p.newRow(tableRoute, lineColumns), route: newPath()}
		p.line.values[lineExtensions] = false
	case "trk":
		p.line = &line{table: tableTrack, values: p.newRow(tableTrack, lineColumns)}
		p.line.values[lineExtensions] = false
	case "trkseg":
		if p.line == nil || p.line.table != tableTrack {
			return p.formatError("<trkseg> outside <trk>")
		}
		p.segment = &segment{values: p.newRow(tableTrackSegment, segColumns), path: newPath()}
		p.segment.values[segExtensions] = false
		p.segment.values[segTrackID] = p.line.values[lineID]
	case "link":
		p.inLink = true
		if href := attr(t, "href"); href != "" {
			if err := p.setText("url", href); err != nil {
				return err
			}
		}
	}
	p.stack = append(p.stack, name)
	return nil
}

// elementNames are the tags that open a row of each table.
var elementNames = [numTables]string{"wpt", "rte", "rtept", "trk", "trkseg", "trkpt"}

// checkNesting rejects points, lines and segments opened inside an
// element that cannot contain them.
func (p *Parser) checkNesting(name string) error {
	open := -1
	switch name {
	case "wpt", "rtept", "trkpt":
		switch {
		case p.point != nil:
			open = p.point.table
		case name == "wpt" && p.line != nil:
			open = p.line.table
		}
	case "rte", "trk":
		switch {
		case p.point != nil:
			open = p.point.table
		case p.line != nil:
			open = p.line.table
		}
	case "trkseg":
		switch {
		case p.point != nil:
			open = p.point.table
		case p.segment != nil:
			open = tableTrackSegment
		}
	}
	if open >= 0 {
		return p.formatError("<%s> inside <%s>", name, elementNames[open])
	}
	return nil
}

// newRow allocates a row for table and assigns the next id of that table.
func (p *Parser) newRow(table, width int) common.Row {
	row := make(common.Row, width)
	p.ids[table]++
	row[colID] = p.ids[table]
	return row
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func (p *Parser) openPoint(table int, t xml.StartElement) error {
	width := pointColumns
	if table != tableWaypoint {
		width++
	}
	pt := &point{table: table, values: p.newRow(table, width)}
	for _, c := range []struct {
		name string
		col  int
		dst  *float64
	}{{"lat", colLat, &pt.coord.Y}, {"lon", colLon, &pt.coord.X}} {
		raw := attr(t, c.name)
		if raw == "" {
			return p.formatError("<%s> has no %s attribute", t.Name.Local, c.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p.formatError("<%s> %s %q is not a number", t.Name.Local, c.name, raw)
		}
		*c.dst = v
		pt.values[c.col] = v
	}
	pt.values[colExtensions] = false
	switch table {
	case tableRoutePoint:
		pt.values[pointColumns] = p.line.values[lineID]
	case tableTrackPoint:
		pt.values[pointColumns] = p.segment.values[segID]
	}
	p.point = pt
	return nil
}

func (p *Parser) markExtensions() {
	switch {
	case p.point != nil:
		p.point.values[colExtensions] = true
	case p.segment != nil:
		p.segment.values[segExtensions] = true
	case p.line != nil:
		p.line.values[lineExtensions] = true
	}
}

func (p *Parser) end(name string) error {
	if n := len(p.stack); n > 0 {
		p.stack = p.stack[:n-1]
	}
	text := strings.TrimSpace(p.text.String())
	p.text.Reset()

	switch name {
	case "wpt", "rtept", "trkpt":
		return p.closePoint()
	case "trkseg":
		return p.closeSegment()
	case "rte", "trk":
		return p.closeLine()
	case "link":
		p.inLink = false
		return nil
	case "text":
		if p.inLink {
			name = "urlname"
		}
	case "type":
		if p.inLink {
			// MIME type of the link, not the entity type
			return nil
		}
	}
	if text == "" {
		return nil
	}
	return p.setText(name, text)
}

// setText stores the text of a field element on the innermost open point,
// route or track. Metadata and unknown elements are ignored.
func (p *Parser) setText(tag, text string) error {
	var (
		row    common.Row
		col    int
		ok     bool
		schema common.Schema
	)
	switch {
	case p.point != nil:
		col, ok = pointTags[tag]
		row, schema = p.point.values, tableDefs[p.point.table].Schema
	case p.segment != nil:
		return nil
	case p.line != nil:
		col, ok = lineTags[tag]
		row, schema = p.line.values, tableDefs[p.line.table].Schema
	}
	if !ok {
		return nil
	}
	switch schema[col].Type {
	case common.TypeDouble:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return p.formatError("<%s> %q is not a number", tag, text)
		}
		row[col] = v
		if p.point != nil && col == colEle {
			p.point.coord.Z = v
			p.point.hasEle = true
		}
	case common.TypeInteger:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return p.formatError("<%s> %q is not an integer", tag, text)
		}
		row[col] = v
	default:
		row[col] = text
	}
	return nil
}

func (p *Parser) emit(table int, row common.Row) {
	p.pending = append(p.pending, common.Result{State: common.StateRow, Table: table, Row: row})
}

func wkb(g *geom.Geometry) (any, error) {
	if g == nil {
		return nil, nil
	}
	g.SRID = SRID
	b, err := geom.MarshalWKB(g)
	if err != nil {
		return nil, common.FormatError("gpx.read", "%v", err)
	}
	return b, nil
}

func (p *Parser) closePoint() error {
	pt := p.point
	if pt == nil {
		return nil
	}
	p.point = nil
	layout := geom.XY
	if pt.hasEle {
		layout = geom.XYZ
	}
	g, err := wkb(geom.NewPoint(layout, pt.coord))
	if err != nil {
		return err
	}
	pt.values[colGeom] = g
	switch pt.table {
	case tableRoutePoint:
		p.line.route.add(pt)
	case tableTrackPoint:
		p.segment.path.add(pt)
	}
	p.emit(pt.table, pt.values)
	return nil
}

func (p *Parser) closeSegment() error {
	seg := p.segment
	if seg == nil {
		return nil
	}
	p.segment = nil
	if len(seg.path.coords) > 1 {
		g, err := wkb(geom.NewLineString(seg.path.layout(), seg.path.coords))
		if err != nil {
			return err
		}
		seg.values[segGeom] = g
		p.line.segments = append(p.line.segments, seg.path)
	}
	p.emit(tableTrackSegment, seg.values)
	return nil
}

func (p *Parser) closeLine() error {
	ln := p.line
	if ln == nil {
		return nil
	}
	p.line = nil
	var g *geom.Geometry
	switch ln.table {
	case tableRoute:
		if len(ln.route.coords) > 1 {
			g = geom.NewLineString(ln.route.layout(), ln.route.coords)
		}
	case tableTrack:
		if len(ln.segments) > 0 {
			layout := geom.XYZ
			lines := make([][]geom.Coord, len(ln.segments))
			for i, s := range ln.segments {
				lines[i] = s.coords
				if s.layout() != geom.XYZ {
					layout = geom.XY
				}
			}
			g = geom.NewMultiLineString(layout, lines)
		}
	}
	v, err := wkb(g)
	if err != nil {
		return err
	}
	ln.values[lineGeom] = v
	p.emit(ln.table, ln.values)
	return nil
}
