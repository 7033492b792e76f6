// Package catalog provides access to raster time-series archives: the
// land-cover label collection and the thermal scene collection. Catalogs are
// read-only collaborators; the pipeline queries them and never mutates them.
package catalog

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/uhi-cli/internal/raster"
)

// Query selects scenes from a catalog. Zero values disable a filter: a zero
// From/To disables the date filter, a zero MonthFrom the month filter, a
// negative MaxCloud the cloud filter and a nil Bounds the spatial filter.
type Query struct {
	From      time.Time
	To        time.Time
	MonthFrom int
	MonthTo   int
	MaxCloud  float64
	Bounds    *geom.Bounds
}

// Catalog yields scene stacks matching a query, ordered by acquisition time.
type Catalog interface {
	Scenes(ctx context.Context, q Query) (raster.Stack, error)
}

// apply runs the query filters over an in-memory stack.
func apply(q Query, s raster.Stack) raster.Stack {
	if !q.From.IsZero() || !q.To.IsZero() {
		s = s.FilterDate(q.From, q.To)
	}
	if q.MonthFrom > 0 {
		s = s.FilterMonths(q.MonthFrom, q.MonthTo)
	}
	if q.MaxCloud >= 0 {
		s = s.FilterCloud(q.MaxCloud)
	}
	if q.Bounds != nil {
		s = s.FilterBounds(q.Bounds)
	}
	return s.Sorted()
}

// Memory is an in-memory catalog, used by tests and by manifest-backed runs.
type Memory struct {
	stack raster.Stack
}

// NewMemory creates a catalog over the given scenes.
func NewMemory(scenes ...raster.Scene) *Memory {
	return &Memory{stack: raster.Stack(scenes)}
}

// Scenes returns the scenes matching the query.
func (m *Memory) Scenes(ctx context.Context, q Query) (raster.Stack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return apply(q, m.stack), nil
}
