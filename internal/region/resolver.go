// Package region derives the analysis boundary from a point coordinate and
// an administrative boundary dataset.
package region

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ErrRegionNotFound is raised when no boundary feature intersects the
// analysis point. The pipeline halts rather than proceed on an empty ROI.
var ErrRegionNotFound = eris.New("no boundary feature intersects the point")

// Feature is one administrative boundary record.
type Feature struct {
	Name string
	Geom *geom.MultiPolygon
}

// Source yields the boundary dataset. Implemented by ShapefileSource; tests
// use in-memory feature slices directly via Resolve.
type Source interface {
	Load(ctx context.Context) ([]Feature, error)
}

// Region is the resolved and simplified analysis boundary: every feature of
// the dataset that contains the analysis point.
type Region struct {
	features  []Feature
	tolerance float64 // simplification tolerance, meters
}

// Resolve returns the subset of features containing point (lng, lat), each
// simplified with the given tolerance in meters. Resolution is a pure
// derivation; the dataset is never mutated.
func Resolve(lng, lat float64, features []Feature, toleranceMeters float64) (*Region, error) {
	if toleranceMeters < 0 {
		return nil, eris.Errorf("region: tolerance must be >= 0, got %g", toleranceMeters)
	}

	pt := geom.Coord{lng, lat}
	var hits []Feature
	for _, f := range features {
		if f.Geom == nil {
			continue
		}
		if !f.Geom.Bounds().OverlapsPoint(geom.XY, pt) {
			continue
		}
		if !multiPolygonContains(f.Geom, lng, lat) {
			continue
		}
		hits = append(hits, Feature{
			Name: f.Name,
			Geom: simplifyMultiPolygon(f.Geom, toleranceMeters/metersPerDegree),
		})
	}

	if len(hits) == 0 {
		return nil, eris.Wrapf(ErrRegionNotFound, "region: point (%g, %g) over %d features", lng, lat, len(features))
	}

	zap.L().Info("region resolved",
		zap.Float64("lng", lng),
		zap.Float64("lat", lat),
		zap.Int("features", len(hits)),
		zap.Float64("tolerance_m", toleranceMeters),
	)
	return &Region{features: hits, tolerance: toleranceMeters}, nil
}

// Features returns the simplified boundary features.
func (r *Region) Features() []Feature { return r.features }

// Tolerance returns the simplification tolerance applied at derivation, in
// meters.
func (r *Region) Tolerance() float64 { return r.tolerance }

// Names returns the feature names, in dataset order.
func (r *Region) Names() []string {
	names := make([]string, 0, len(r.features))
	for _, f := range r.features {
		names = append(names, f.Name)
	}
	return names
}

// Contains reports whether the point lies inside any feature.
func (r *Region) Contains(x, y float64) bool {
	for _, f := range r.features {
		if f.Geom.Bounds().OverlapsPoint(geom.XY, geom.Coord{x, y}) && multiPolygonContains(f.Geom, x, y) {
			return true
		}
	}
	return false
}

// Bounds returns the extent of the resolved boundary.
func (r *Region) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range r.features {
		b.Extend(f.Geom)
	}
	return b
}

// multiPolygonContains tests point membership with an even-odd ray crossing
// over every ring, which handles holes without treating them specially.
func multiPolygonContains(mp *geom.MultiPolygon, x, y float64) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		crossings := 0
		for j := 0; j < p.NumLinearRings(); j++ {
			crossings += ringCrossings(p.LinearRing(j).Coords(), x, y)
		}
		if crossings%2 == 1 {
			return true
		}
	}
	return false
}

// ringCrossings counts how many ring edges a ray cast east from (x, y)
// crosses.
func ringCrossings(ring []geom.Coord, x, y float64) int {
	n := 0
	for i := 0; i < len(ring)-1; i++ {
		x1, y1 := ring[i][0], ring[i][1]
		x2, y2 := ring[i+1][0], ring[i+1][1]
		if (y1 > y) == (y2 > y) {
			continue
		}
		if x < x1+(y-y1)/(y2-y1)*(x2-x1) {
			n++
		}
	}
	return n
}
