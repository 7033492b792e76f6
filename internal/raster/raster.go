// Package raster holds the in-memory raster model and the lazy expression
// graph the heat-island pipeline is built from. Absent pixels are tracked
// with an explicit validity mask, never a sentinel value.
package raster

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Grid describes the pixel geometry of a raster: a regular grid anchored at
// its north-west corner, with square pixels of Scale units in the given CRS.
type Grid struct {
	CRS    string  `json:"crs"`
	West   float64 `json:"west"`
	North  float64 `json:"north"`
	Scale  float64 `json:"scale"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Pixels returns the total cell count.
func (g Grid) Pixels() int64 {
	return int64(g.Width) * int64(g.Height)
}

// CellCenter returns the CRS coordinates of the center of cell (col, row).
func (g Grid) CellCenter(col, row int) (x, y float64) {
	x = g.West + (float64(col)+0.5)*g.Scale
	y = g.North - (float64(row)+0.5)*g.Scale
	return x, y
}

// CellAt returns the cell containing the CRS point (x, y), with ok false
// when the point falls outside the grid.
func (g Grid) CellAt(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - g.West) / g.Scale))
	row = int(math.Floor((g.North - y) / g.Scale))
	if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Bounds returns the spatial extent of the grid.
func (g Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	b.Set(g.West, g.North-float64(g.Height)*g.Scale, g.West+float64(g.Width)*g.Scale, g.North)
	return b
}

// GridForBounds builds the smallest grid at the given scale covering bounds.
func GridForBounds(b *geom.Bounds, scale float64, crs string) Grid {
	width := int(math.Ceil((b.Max(0) - b.Min(0)) / scale))
	height := int(math.Ceil((b.Max(1) - b.Min(1)) / scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return Grid{
		CRS:    crs,
		West:   b.Min(0),
		North:  b.Max(1),
		Scale:  scale,
		Width:  width,
		Height: height,
	}
}

// ROI is the spatial filter every stage works within. Implemented by
// region.Region; kept as an interface so raster code never depends on how
// boundaries are sourced.
type ROI interface {
	Contains(x, y float64) bool
	Bounds() *geom.Bounds
}

// Raster is a single grid of values with a per-cell validity mask.
// Stages treat a Raster as immutable once it leaves its constructor; Set and
// Invalidate exist only for construction and for catalog decoding.
type Raster struct {
	grid  Grid
	data  []float64
	valid []bool
}

// New creates a raster on the given grid with every cell invalid.
func New(grid Grid) *Raster {
	n := grid.Pixels()
	return &Raster{
		grid:  grid,
		data:  make([]float64, n),
		valid: make([]bool, n),
	}
}

// Grid returns the raster's pixel geometry.
func (r *Raster) Grid() Grid { return r.grid }

// At returns the value at (col, row) and whether it is valid.
func (r *Raster) At(col, row int) (float64, bool) {
	i := row*r.grid.Width + col
	return r.data[i], r.valid[i]
}

// Set writes a valid value at (col, row).
func (r *Raster) Set(col, row int, v float64) {
	i := row*r.grid.Width + col
	r.data[i] = v
	r.valid[i] = true
}

// Invalidate marks the cell at (col, row) as having no data.
func (r *Raster) Invalidate(col, row int) {
	i := row*r.grid.Width + col
	r.data[i] = 0
	r.valid[i] = false
}

// Sample returns the value of the cell containing the CRS point (x, y).
// Nearest-neighbour lookup; ok is false outside the extent or on an invalid
// cell. This is how stacks with differing grids contribute to a composite.
func (r *Raster) Sample(x, y float64) (float64, bool) {
	col, row, ok := r.grid.CellAt(x, y)
	if !ok {
		return 0, false
	}
	return r.At(col, row)
}

// ValidCount returns the number of valid cells.
func (r *Raster) ValidCount() int64 {
	var n int64
	for _, ok := range r.valid {
		if ok {
			n++
		}
	}
	return n
}

// AllInvalid reports whether the raster carries no data at all.
func (r *Raster) AllInvalid() bool {
	return r.ValidCount() == 0
}

// ClipTo returns a copy with every cell whose center lies outside the ROI
// invalidated.
func (r *Raster) ClipTo(roi ROI) *Raster {
	out := New(r.grid)
	for row := 0; row < r.grid.Height; row++ {
		for col := 0; col < r.grid.Width; col++ {
			v, ok := r.At(col, row)
			if !ok {
				continue
			}
			x, y := r.grid.CellCenter(col, row)
			if roi.Contains(x, y) {
				out.Set(col, row, v)
			}
		}
	}
	return out
}
