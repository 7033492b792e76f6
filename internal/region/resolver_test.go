package region

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// square builds a closed square MultiPolygon from (x0,y0) to (x1,y1).
func square(x0, y0, x1, y1 float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0,
	})
	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(ring); err != nil {
		panic(err)
	}
	if err := mp.Push(poly); err != nil {
		panic(err)
	}
	return mp
}

func TestResolve(t *testing.T) {
	features := []Feature{
		{Name: "North", Geom: square(0, 5, 10, 10)},
		{Name: "South", Geom: square(0, 0, 10, 5)},
		{Name: "Offshore", Geom: square(100, 100, 110, 110)},
	}

	t.Run("exactly the intersecting subset", func(t *testing.T) {
		r, err := Resolve(5, 2, features, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"South"}, r.Names())
	})

	t.Run("no feature intersects", func(t *testing.T) {
		_, err := Resolve(50, 50, features, 0)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrRegionNotFound))
	})

	t.Run("negative tolerance rejected", func(t *testing.T) {
		_, err := Resolve(5, 2, features, -1)
		assert.Error(t, err)
	})

	t.Run("contains after resolution", func(t *testing.T) {
		r, err := Resolve(5, 2, features, 0)
		require.NoError(t, err)
		assert.True(t, r.Contains(1, 1))
		assert.False(t, r.Contains(5, 7), "point in a non-resolved feature")
		assert.False(t, r.Contains(-1, -1))
	})
}

func TestResolveSimplifiedBoundsDoNotGrow(t *testing.T) {
	// A square with redundant midpoints on each edge.
	mp := geom.NewMultiPolygon(geom.XY)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		0, 0, 5, 0, 10, 0, 10, 5, 10, 10, 5, 10, 0, 10, 0, 5, 0, 0,
	})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(ring))
	require.NoError(t, mp.Push(poly))

	features := []Feature{{Name: "Square", Geom: mp}}

	r, err := Resolve(5, 5, features, 1000)
	require.NoError(t, err)

	orig := mp.Bounds()
	simplified := r.Bounds()
	assert.GreaterOrEqual(t, simplified.Min(0), orig.Min(0))
	assert.GreaterOrEqual(t, simplified.Min(1), orig.Min(1))
	assert.LessOrEqual(t, simplified.Max(0), orig.Max(0))
	assert.LessOrEqual(t, simplified.Max(1), orig.Max(1))

	// The collinear midpoints fall within a 1000 m tolerance.
	got := r.Features()[0].Geom.Polygon(0).LinearRing(0).Coords()
	assert.Less(t, len(got), 9)
	assert.GreaterOrEqual(t, len(got), 4, "simplification never empties a valid ring")
}

func TestContainsWithHole(t *testing.T) {
	outer := geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0})
	hole := geom.NewLinearRingFlat(geom.XY, []float64{4, 4, 6, 4, 6, 6, 4, 6, 4, 4})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(outer))
	require.NoError(t, poly.Push(hole))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))

	assert.True(t, multiPolygonContains(mp, 2, 2))
	assert.False(t, multiPolygonContains(mp, 5, 5), "point in hole is outside")
	assert.False(t, multiPolygonContains(mp, 11, 5))
}
