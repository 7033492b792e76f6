package region

import (
	"math"

	"github.com/twpayne/go-geom"
)

// metersPerDegree approximates one degree of latitude at the equator, used
// to convert the configured tolerance in meters to coordinate units.
const metersPerDegree = 111320.0

// simplifyMultiPolygon applies Douglas-Peucker vertex reduction to every
// ring. A ring that would degenerate below a valid polygon (4 coordinates
// including closure) is kept unsimplified, so a valid input never yields an
// empty boundary. Removing vertices can only shrink or keep the extent,
// never grow it.
func simplifyMultiPolygon(mp *geom.MultiPolygon, tolerance float64) *geom.MultiPolygon {
	if tolerance <= 0 {
		return mp
	}

	out := geom.NewMultiPolygon(geom.XY).SetSRID(mp.SRID())
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		poly := geom.NewPolygon(geom.XY)
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := p.LinearRing(j).Coords()
			simplified := simplifyRing(ring, tolerance)
			lr := geom.NewLinearRingFlat(geom.XY, flatCoords(simplified))
			if err := poly.Push(lr); err != nil {
				// Fall back to the original ring rather than drop it.
				_ = poly.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(ring)))
			}
		}
		_ = out.Push(poly)
	}
	return out
}

// simplifyRing runs Douglas-Peucker over a closed ring. The first and last
// coordinates (equal by convention) are always kept.
func simplifyRing(ring []geom.Coord, tolerance float64) []geom.Coord {
	if len(ring) <= 4 {
		return ring
	}

	keep := make([]bool, len(ring))
	keep[0] = true
	keep[len(ring)-1] = true
	douglasPeucker(ring, 0, len(ring)-1, tolerance, keep)

	out := make([]geom.Coord, 0, len(ring))
	for i, k := range keep {
		if k {
			out = append(out, ring[i])
		}
	}
	if len(out) < 4 {
		return ring
	}
	return out
}

func douglasPeucker(coords []geom.Coord, first, last int, tolerance float64, keep []bool) {
	if last <= first+1 {
		return
	}

	maxDist := 0.0
	maxIdx := first
	for i := first + 1; i < last; i++ {
		d := pointSegmentDistance(coords[i], coords[first], coords[last])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > tolerance {
		keep[maxIdx] = true
		douglasPeucker(coords, first, maxIdx, tolerance, keep)
		douglasPeucker(coords, maxIdx, last, tolerance, keep)
	}
}

// pointSegmentDistance returns the perpendicular distance from p to the
// segment (a, b).
func pointSegmentDistance(p, a, b geom.Coord) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
