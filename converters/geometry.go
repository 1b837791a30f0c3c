package converters

import (
	"context"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// GeometryProfile describes the geometries stored in one column.
type GeometryProfile struct {
	Kinds  map[geom.Kind]int64
	Layout geom.Layout // widest layout seen
	SRID   int         // first non-zero SRID seen
	Nulls  int64
}

// Dominant returns the most frequent kind, or 0 when the column holds only
// nulls. Ties go to the lower kind code.
func (p GeometryProfile) Dominant() geom.Kind {
	var (
		best geom.Kind
		n    int64
	)
	for k := geom.KindPoint; k <= geom.KindMultiPolygon; k++ {
		if p.Kinds[k] > n {
			best, n = k, p.Kinds[k]
		}
	}
	return best
}

// ProfileGeometry makes one pass over column of table.
func ProfileGeometry(ctx context.Context, engine common.TableEngine, table string, column int) (GeometryProfile, error) {
	p := GeometryProfile{Kinds: map[geom.Kind]int64{}}
	var z, m bool
	err := engine.Scan(ctx, table, func(row common.Row) error {
		raw, _ := row[column].([]byte)
		if len(raw) == 0 {
			p.Nulls++
			return nil
		}
		g, err := geom.UnmarshalWKB(raw)
		if err != nil {
			return common.FormatError("profile", "table %s: %v", table, err)
		}
		p.Kinds[g.Kind]++
		z = z || g.Layout.HasZ()
		m = m || g.Layout.HasM()
		if p.SRID == 0 {
			p.SRID = g.SRID
		}
		return nil
	})
	p.Layout = geom.LayoutOf(z, m)
	return p, err
}
