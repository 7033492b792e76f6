package raster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Expr is a deferred raster computation. Building an Expr costs nothing;
// pixels are only touched when a terminal consumer calls Materialize. Each
// node memoizes its result, so shared subgraphs evaluate once.
type Expr interface {
	// Name identifies the operation for error context and logging.
	Name() string

	// Materialize forces evaluation of this node and everything below it.
	Materialize(ctx context.Context) (*Raster, error)
}

type memo struct {
	done bool
	r    *Raster
	err  error
}

func (m *memo) run(fn func() (*Raster, error)) (*Raster, error) {
	if !m.done {
		m.r, m.err = fn()
		m.done = true
	}
	return m.r, m.err
}

// Const wraps an already materialized raster as an Expr.
func Const(r *Raster) Expr { return &constExpr{r: r} }

type constExpr struct{ r *Raster }

func (e *constExpr) Name() string { return "const" }

func (e *constExpr) Materialize(ctx context.Context) (*Raster, error) { return e.r, nil }

// MedianComposite calibrates every scene of a thermal stack with its named
// per-acquisition coefficients (value*scale+offset) and reduces the stack
// pixel-wise to the median onto the target grid. A retained scene missing
// either coefficient fails the whole evaluation with ErrMissingCalibration.
// An empty stack yields an all-invalid raster.
func MedianComposite(stack Stack, grid Grid, scaleProp, offsetProp string) Expr {
	return &medianExpr{stack: stack, grid: grid, scaleProp: scaleProp, offsetProp: offsetProp}
}

type medianExpr struct {
	stack      Stack
	grid       Grid
	scaleProp  string
	offsetProp string
	memo       memo
}

func (e *medianExpr) Name() string { return "median_composite" }

func (e *medianExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, e.Name())
		}

		// Coefficients are checked up front so a missing attribute fails
		// the run even when the scene contributes no valid pixels.
		type calibrated struct {
			scene         Scene
			scale, offset float64
		}
		cal := make([]calibrated, 0, len(e.stack))
		for _, sc := range e.stack {
			scale, okS := sc.Prop(e.scaleProp)
			offset, okO := sc.Prop(e.offsetProp)
			if !okS || !okO {
				return nil, eris.Wrapf(ErrMissingCalibration,
					"%s: scene %s lacks %s or %s", e.Name(), sc.ID, e.scaleProp, e.offsetProp)
			}
			cal = append(cal, calibrated{scene: sc, scale: scale, offset: offset})
		}

		out := New(e.grid)
		if len(cal) == 0 {
			zap.L().Warn("median composite over empty stack, output is all-invalid")
			return out, nil
		}

		vals := make([]float64, 0, len(cal))
		for row := 0; row < e.grid.Height; row++ {
			for col := 0; col < e.grid.Width; col++ {
				x, y := e.grid.CellCenter(col, row)
				vals = vals[:0]
				for _, c := range cal {
					if v, ok := c.scene.Raster.Sample(x, y); ok {
						vals = append(vals, v*c.scale+c.offset)
					}
				}
				// Valid iff at least one contributing date was valid here.
				if len(vals) > 0 {
					out.Set(col, row, median(vals))
				}
			}
		}
		return out, nil
	})
}

// ModeMask reduces a categorical stack to the per-pixel mode (most frequent
// label over time) and emits 1 where the mode equals target, 0 elsewhere.
// Pixels with no valid observation stay invalid: "no urban" and "no data"
// are different answers.
func ModeMask(stack Stack, grid Grid, target int) Expr {
	return &modeExpr{stack: stack, grid: grid, target: target}
}

type modeExpr struct {
	stack  Stack
	grid   Grid
	target int
	memo   memo
}

func (e *modeExpr) Name() string { return "mode_mask" }

func (e *modeExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, e.Name())
		}

		out := New(e.grid)
		if len(e.stack) == 0 {
			zap.L().Warn("mode mask over empty stack, output is all-invalid")
			return out, nil
		}

		counts := make(map[int]int, 8)
		for row := 0; row < e.grid.Height; row++ {
			for col := 0; col < e.grid.Width; col++ {
				x, y := e.grid.CellCenter(col, row)
				clear(counts)
				for _, sc := range e.stack {
					if v, ok := sc.Raster.Sample(x, y); ok {
						counts[int(v)]++
					}
				}
				if len(counts) == 0 {
					continue
				}
				if mode(counts) == e.target {
					out.Set(col, row, 1)
				} else {
					out.Set(col, row, 0)
				}
			}
		}
		return out, nil
	})
}

// Deviation maps every valid pixel to (value-mean)/mean, the dimensionless
// relative deviation from the region-wide mean.
func Deviation(src Expr, mean float64) Expr {
	return &deviationExpr{src: src, mean: mean}
}

type deviationExpr struct {
	src  Expr
	mean float64
	memo memo
}

func (e *deviationExpr) Name() string { return "deviation" }

func (e *deviationExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		if e.mean == 0 {
			return nil, eris.Wrapf(ErrZeroMean, "%s", e.Name())
		}
		src, err := e.src.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		g := src.Grid()
		out := New(g)
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				if v, ok := src.At(col, row); ok {
					out.Set(col, row, (v-e.mean)/e.mean)
				}
			}
		}
		return out, nil
	})
}

// ClassifyStep buckets every valid pixel through the break table.
func ClassifyStep(src Expr, breaks ClassBreaks) Expr {
	return &classifyExpr{src: src, breaks: breaks}
}

type classifyExpr struct {
	src    Expr
	breaks ClassBreaks
	memo   memo
}

func (e *classifyExpr) Name() string { return "classify" }

func (e *classifyExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		src, err := e.src.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		g := src.Grid()
		out := New(g)
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				if v, ok := src.At(col, row); ok {
					out.Set(col, row, float64(e.breaks.Class(v)))
				}
			}
		}
		return out, nil
	})
}

// MaskBy invalidates src pixels where mask is invalid or zero.
func MaskBy(src, mask Expr) Expr {
	return &maskExpr{src: src, mask: mask}
}

type maskExpr struct {
	src, mask Expr
	memo      memo
}

func (e *maskExpr) Name() string { return "mask" }

func (e *maskExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		src, err := e.src.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		mask, err := e.mask.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		g := src.Grid()
		out := New(g)
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				v, ok := src.At(col, row)
				if !ok {
					continue
				}
				x, y := g.CellCenter(col, row)
				if mv, mok := mask.Sample(x, y); mok && mv != 0 {
					out.Set(col, row, v)
				}
			}
		}
		return out, nil
	})
}

// Clip invalidates src pixels whose center lies outside the ROI.
func Clip(src Expr, roi ROI) Expr {
	return &clipExpr{src: src, roi: roi}
}

type clipExpr struct {
	src  Expr
	roi  ROI
	memo memo
}

func (e *clipExpr) Name() string { return "clip" }

func (e *clipExpr) Materialize(ctx context.Context) (*Raster, error) {
	return e.memo.run(func() (*Raster, error) {
		src, err := e.src.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		return src.ClipTo(e.roi), nil
	})
}
