package raster

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want float64
	}{
		{"odd stack", []float64{10, 12, 14}, 12},
		{"even stack mean of middle two", []float64{10, 14}, 12},
		{"single", []float64{7}, 7},
		{"unsorted input", []float64{14, 10, 12}, 12},
		{"four values", []float64{1, 2, 3, 10}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, median(tt.vals))
		})
	}
}

func TestRegionMean(t *testing.T) {
	g := testGrid(4, 4)
	r := New(g)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			r.Set(col, row, 300)
		}
	}
	r.Set(0, 0, 316) // pulls mean to 301

	roi := rectROI{minX: 0, minY: 0, maxX: 4, maxY: 4}

	stat, err := RegionMean(context.Background(), Const(r), roi, 1, 1000)
	require.NoError(t, err)
	assert.True(t, stat.Valid)
	assert.InDelta(t, 301.0, stat.Value, 1e-9)
	assert.Equal(t, int64(16), stat.Pixels)
	assert.Equal(t, "mean", stat.Reducer)
}

func TestRegionMeanSkipsInvalidAndOutside(t *testing.T) {
	g := testGrid(4, 4)
	r := New(g)
	r.Set(0, 3, 10) // inside ROI
	r.Set(3, 0, 99) // outside ROI

	roi := rectROI{minX: 0, minY: 0, maxX: 2, maxY: 2}
	stat, err := RegionMean(context.Background(), Const(r), roi, 1, 1000)
	require.NoError(t, err)
	require.True(t, stat.Valid)
	assert.Equal(t, int64(1), stat.Pixels)
	assert.Equal(t, 10.0, stat.Value)
}

func TestRegionMeanEmptyWindow(t *testing.T) {
	g := testGrid(2, 2)
	roi := rectROI{minX: 0, minY: 0, maxX: 2, maxY: 2}

	stat, err := RegionMean(context.Background(), Const(New(g)), roi, 1, 1000)
	require.NoError(t, err, "no valid data is an invalid stat, not an error")
	assert.False(t, stat.Valid)
	assert.Equal(t, int64(0), stat.Pixels)
}

func TestRegionMeanBudget(t *testing.T) {
	roi := rectROI{minX: 0, minY: 0, maxX: 1000, maxY: 1000}

	// The source would blow up if materialized; the budget must trip first.
	src := &failingExpr{}
	_, err := RegionMean(context.Background(), src, roi, 1, 100)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPixelBudgetExceeded))
	assert.False(t, src.materialized, "budget check must run before any pixel is touched")
	assert.Contains(t, err.Error(), "budget 100")
}

func TestRegionMeanWithinBudget(t *testing.T) {
	g := testGrid(2, 2)
	r := New(g)
	r.Set(0, 0, 5)
	roi := rectROI{minX: 0, minY: 0, maxX: 2, maxY: 2}

	_, err := RegionMean(context.Background(), Const(r), roi, 1, 4)
	assert.NoError(t, err, "estimate equal to budget passes")
}

type failingExpr struct{ materialized bool }

func (f *failingExpr) Name() string { return "failing" }

func (f *failingExpr) Materialize(ctx context.Context) (*Raster, error) {
	f.materialized = true
	return nil, eris.New("should not be evaluated")
}
