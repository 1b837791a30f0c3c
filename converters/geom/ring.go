package geom

// IsCCW reports whether a closed ring is counter-clockwise. Degenerate
// rings report false.
func IsCCW(ring []Coord) bool {
	n := len(ring) - 1 // without the closing vertex
	if n < 3 {
		return false
	}

	hi := 0
	for i := 1; i <= n; i++ {
		if ring[i].Y > ring[hi].Y {
			hi = i
		}
	}

	prev := hi
	for {
		prev--
		if prev < 0 {
			prev = n
		}
		if !equal2D(ring[prev], ring[hi]) || prev == hi {
			break
		}
	}
	next := hi
	for {
		next = (next + 1) % n
		if !equal2D(ring[next], ring[hi]) || next == hi {
			break
		}
	}
	if equal2D(ring[prev], ring[hi]) || equal2D(ring[next], ring[hi]) || equal2D(ring[prev], ring[next]) {
		return false
	}

	disc := orientation(ring[prev], ring[hi], ring[next])
	if disc == 0 {
		return ring[prev].X > ring[next].X
	}
	return disc > 0
}

func equal2D(a, b Coord) bool { return a.X == b.X && a.Y == b.Y }

// orientation is 1 for a left turn p1->p2->q, -1 for right, 0 collinear.
func orientation(p1, p2, q Coord) int {
	det := (p2.X-p1.X)*(q.Y-p2.Y) - (p2.Y-p1.Y)*(q.X-p2.X)
	switch {
	case det > 0:
		return 1
	case det < 0:
		return -1
	}
	return 0
}

// Reverse returns ring in opposite order.
func Reverse(ring []Coord) []Coord {
	out := make([]Coord, len(ring))
	for i, c := range ring {
		out[len(ring)-1-i] = c
	}
	return out
}

// Close appends the first vertex when ring is open.
func Close(ring []Coord) []Coord {
	if len(ring) > 0 && !equal2D(ring[0], ring[len(ring)-1]) {
		return append(ring, ring[0])
	}
	return ring
}

// PointInRing tests p against ring with the even-odd rule. Points on the
// boundary count as inside.
func PointInRing(p Coord, ring []Coord) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

func onSegment(p, a, b Coord) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}
