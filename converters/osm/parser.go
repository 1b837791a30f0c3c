// Package osm imports OpenStreetMap XML into ten tables: nodes, ways and
// relations, their tags, way nodes, and relation members by member type.
package osm

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

type member struct {
	table int
	ref   int64
	role  any
	order int64
}

// element is an open node, way or relation.
type element struct {
	table   int
	id      int64
	row     common.Row
	tags    [][2]string
	nodes   []int64
	members []member
	seen    int64 // every <member>, kept or not
}

// Parser streams the rows of an OSM document. A node, way or relation
// row is produced when the element closes, followed by its tags and then
// its way nodes or members.
type Parser struct {
	dec      *xml.Decoder
	input    *common.InputFile
	progress common.Progress

	depth    int
	rootSeen bool
	done     bool
	current  *element

	pending []common.Result
	rows    int64
}

var _ common.Source = (*Parser)(nil)

// NewParser reads an OSM document from r.
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
	return common.FormatError("osm.read", "line %d: "+format, append([]any{line}, args...)...)
}

func (p *Parser) step() error {
	tok, err := p.dec.Token()
	if errors.Is(err, io.EOF) {
		if p.depth > 0 {
			return p.formatError("unexpected end of document")
		}
		if !p.rootSeen {
			return common.FormatError("osm.read", "document has no <osm> element")
		}
		p.done = true
		return nil
	}
	if err != nil {
		return common.XMLError("osm.read", err)
	}
	switch t := tok.(type) {
	case xml.StartElement:
		p.depth++
		return p.start(t)
	case xml.EndElement:
		p.depth--
		return p.end(strings.ToLower(t.Name.Local))
	}
	return nil
}

func attrs(t xml.StartElement) map[string]string {
	m := make(map[string]string, len(t.Attr))
	for _, a := range t.Attr {
		m[strings.ToLower(a.Name.Local)] = a.Value
	}
	return m
}

func (p *Parser) start(t xml.StartElement) error {
	name := strings.ToLower(t.Name.Local)
	if !p.rootSeen {
		if name != "osm" {
			return p.formatError("root element is <%s>, not <osm>", t.Name.Local)
		}
		p.rootSeen = true
		return nil
	}
	a := attrs(t)

	switch name {
	case "node":
		return p.openNode(a)
	case "way":
		return p.open(tableWay, a)
	case "relation":
		return p.open(tableRelation, a)
	case "tag":
		if p.current == nil {
			return nil
		}
		if k, ok := a["k"]; ok {
			p.current.tags = append(p.current.tags, [2]string{k, a["v"]})
		}
	case "nd":
		if p.current == nil || p.current.table != tableWay {
			return nil
		}
		ref, err := p.requireInt(a, "nd", "ref")
		if err != nil {
			return err
		}
		p.current.nodes = append(p.current.nodes, ref)
	case "member":
		if p.current == nil || p.current.table != tableRelation {
			return nil
		}
		p.current.seen++
		ref, err := p.requireInt(a, "member", "ref")
		if err != nil {
			return err
		}
		m := member{ref: ref, order: p.current.seen}
		if role, ok := a["role"]; ok {
			m.role = role
		}
		switch strings.ToLower(a["type"]) {
		case "node":
			m.table = tableNodeMember
		case "way":
			m.table = tableWayMember
		case "relation":
			m.table = tableRelationMember
		default:
			return nil
		}
		p.current.members = append(p.current.members, m)
	}
	return nil
}

func (p *Parser) requireInt(a map[string]string, elem, key string) (int64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, p.formatError("<%s> has no %s attribute", elem, key)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, p.formatError("<%s> %s %q is not an integer", elem, key, raw)
	}
	return v, nil
}

func (p *Parser) requireFloat(a map[string]string, elem, key string) (float64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, p.formatError("<%s> has no %s attribute", elem, key)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, p.formatError("<%s> %s %q is not a number", elem, key, raw)
	}
	return v, nil
}

func (p *Parser) open(table int, a map[string]string) error {
	elem := tableDefs[table].Suffix[1:]
	id, err := p.requireInt(a, elem, "id")
	if err != nil {
		return err
	}
	e := &element{table: table, id: id, row: make(common.Row, len(tableDefs[table].Schema))}
	e.row[0] = id
	meta := 1
	if table == tableNode {
		meta = 3
	}
	if err := p.setMeta(e.row[meta:], a, elem); err != nil {
		return err
	}
	p.current = e
	return nil
}

func (p *Parser) openNode(a map[string]string) error {
	lat, err := p.requireFloat(a, "node", "lat")
	if err != nil {
		return err
	}
	lon, err := p.requireFloat(a, "node", "lon")
	if err != nil {
		return err
	}
	if err := p.open(tableNode, a); err != nil {
		return err
	}
	g := geom.NewPoint(geom.XY, geom.Coord{X: lon, Y: lat})
	g.SRID = SRID
	b, err := geom.MarshalWKB(g)
	if err != nil {
		return common.FormatError("osm.read", "%v", err)
	}
	p.current.row[1] = b
	return nil
}

// setMeta fills user_name, uid, visible, version, changeset and
// last_update. Absent attributes stay null.
func (p *Parser) setMeta(dst common.Row, a map[string]string, elem string) error {
	if v, ok := a["user"]; ok {
		dst[0] = v
	}
	for _, c := range []struct {
		key string
		idx int
	}{{"uid", 1}, {"version", 3}, {"changeset", 4}} {
		if _, ok := a[c.key]; !ok {
			continue
		}
		v, err := p.requireInt(a, elem, c.key)
		if err != nil {
			return err
		}
		dst[c.idx] = v
	}
	if v, ok := a["visible"]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return p.formatError("<%s> visible %q is not a boolean", elem, v)
		}
		dst[2] = b
	}
	if v, ok := a["timestamp"]; ok {
		dst[5] = v
	}
	return nil
}

func (p *Parser) emit(table int, row common.Row) {
	p.pending = append(p.pending, common.Result{State: common.StateRow, Table: table, Row: row})
}

func (p *Parser) end(name string) error {
	e := p.current
	if e == nil || name != tableDefs[e.table].Suffix[1:] {
		return nil
	}
	p.current = nil

	last := len(e.row) - 1
	for _, kv := range e.tags {
		switch {
		case kv[0] == "name" && e.table != tableRelation:
			e.row[last] = kv[1]
		case kv[0] == "ele" && e.table == tableNode:
			if v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64); err == nil {
				e.row[2] = v
			}
		}
	}
	p.emit(e.table, e.row)

	tagTable := e.table + 1
	for _, kv := range e.tags {
		p.emit(tagTable, common.Row{e.id, kv[0], kv[1]})
	}
	for i, ref := range e.nodes {
		p.emit(tableWayNode, common.Row{e.id, ref, int64(i + 1)})
	}
	for _, m := range e.members {
		p.emit(m.table, common.Row{e.id, m.ref, m.role, m.order})
	}
	return nil
}
