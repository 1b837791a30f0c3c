package common

// ProjectSink forwards only the listed columns of each row to next, in the
// listed order.
func ProjectSink(next Sink, columns []int) Sink {
	return &projectSink{next: next, columns: columns, buf: make(Row, len(columns))}
}

type projectSink struct {
	next    Sink
	columns []int
	buf     Row
}

func (p *projectSink) InsertRow(values Row) error {
	for i, c := range p.columns {
		if c >= len(values) {
			return SchemaError("project", "column %d missing from row of %d values", c, len(values))
		}
		p.buf[i] = values[c]
	}
	return p.next.InsertRow(p.buf)
}

func (p *projectSink) Close() error { return p.next.Close() }
