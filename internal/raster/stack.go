package raster

import (
	"sort"
	"time"

	"github.com/twpayne/go-geom"
)

// Scene is one element of a raster time series: a single-band raster plus
// acquisition metadata. Props carries named per-acquisition attributes such
// as calibration coefficients.
type Scene struct {
	ID         string
	AcquiredAt time.Time
	CloudCover float64
	Props      map[string]float64
	Raster     *Raster
}

// Prop looks up a named metadata attribute.
func (s Scene) Prop(name string) (float64, bool) {
	v, ok := s.Props[name]
	return v, ok
}

// Stack is a time-ordered collection of scenes. Filters return new stacks;
// a stack is never mutated in place.
type Stack []Scene

// Sorted returns a copy ordered by acquisition time.
func (s Stack) Sorted() Stack {
	out := make(Stack, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out
}

// FilterDate keeps scenes acquired in [from, to).
func (s Stack) FilterDate(from, to time.Time) Stack {
	var out Stack
	for _, sc := range s {
		if !sc.AcquiredAt.Before(from) && sc.AcquiredAt.Before(to) {
			out = append(out, sc)
		}
	}
	return out
}

// FilterMonths keeps scenes whose calendar month falls in [from, to].
func (s Stack) FilterMonths(from, to int) Stack {
	var out Stack
	for _, sc := range s {
		m := int(sc.AcquiredAt.Month())
		if m >= from && m <= to {
			out = append(out, sc)
		}
	}
	return out
}

// FilterCloud keeps scenes with cloud cover strictly below max percent.
func (s Stack) FilterCloud(max float64) Stack {
	var out Stack
	for _, sc := range s {
		if sc.CloudCover < max {
			out = append(out, sc)
		}
	}
	return out
}

// FilterBounds keeps scenes whose extent overlaps the given bounds.
func (s Stack) FilterBounds(b *geom.Bounds) Stack {
	var out Stack
	for _, sc := range s {
		if sc.Raster != nil && sc.Raster.Grid().Bounds().Overlaps(geom.XY, b) {
			out = append(out, sc)
		}
	}
	return out
}
