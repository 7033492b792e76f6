package raster

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// median returns the median of vals. Even-length inputs take the mean of the
// two middle values. vals must be non-empty; it is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// mode returns the most frequent label. Equal counts resolve to the lowest
// label so the result is deterministic.
func mode(counts map[int]int) int {
	best, bestCount := 0, -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best, bestCount = label, count
		}
	}
	return best
}

// Stat is a scalar statistic together with its computation context. A
// region-wide mean is never exact; it is an approximation bounded by the
// sampling scale and the pixel budget recorded here.
type Stat struct {
	Value   float64 `json:"value"`
	Valid   bool    `json:"valid"`
	Reducer string  `json:"reducer"`
	Scale   float64 `json:"scale"`
	Pixels  int64   `json:"pixels"`
	Budget  int64   `json:"budget"`
}

// RegionMean computes the mean of src over the ROI, sampled on a grid at the
// given scale. The estimated sample count — the ROI bounding box divided
// into scale-sized cells — is checked against maxPixels before src is
// materialized, so the budget trips independent of data availability.
// A window with no valid pixels yields an invalid Stat, not an error.
func RegionMean(ctx context.Context, src Expr, roi ROI, scale float64, maxPixels int64) (Stat, error) {
	stat := Stat{Reducer: "mean", Scale: scale, Budget: maxPixels}

	b := roi.Bounds()
	estimated := math.Ceil((b.Max(0)-b.Min(0))/scale) * math.Ceil((b.Max(1)-b.Min(1))/scale)
	if estimated > float64(maxPixels) {
		return stat, eris.Wrapf(ErrPixelBudgetExceeded,
			"region_mean: estimated %.0f pixels at scale %g exceeds budget %d", estimated, scale, maxPixels)
	}

	r, err := src.Materialize(ctx)
	if err != nil {
		return stat, err
	}

	sampling := GridForBounds(b, scale, r.Grid().CRS)
	var sum float64
	var n int64
	for row := 0; row < sampling.Height; row++ {
		for col := 0; col < sampling.Width; col++ {
			x, y := sampling.CellCenter(col, row)
			if !roi.Contains(x, y) {
				continue
			}
			if v, ok := r.Sample(x, y); ok {
				sum += v
				n++
			}
		}
	}

	stat.Pixels = n
	if n == 0 {
		zap.L().Warn("region mean has no valid samples",
			zap.Float64("scale", scale),
			zap.String("reducer", stat.Reducer),
		)
		return stat, nil
	}
	stat.Value = sum / float64(n)
	stat.Valid = true
	return stat, nil
}
