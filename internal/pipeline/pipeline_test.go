package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/uhi-cli/internal/catalog"
	"github.com/sells-group/uhi-cli/internal/config"
	"github.com/sells-group/uhi-cli/internal/export"
	"github.com/sells-group/uhi-cli/internal/model"
	"github.com/sells-group/uhi-cli/internal/raster"
	"github.com/sells-group/uhi-cli/internal/region"
	"github.com/sells-group/uhi-cli/internal/store"
)

// memSource serves a fixed boundary dataset.
type memSource struct {
	features []region.Feature
}

func (s *memSource) Load(ctx context.Context) ([]region.Feature, error) {
	return s.features, nil
}

// squareSource returns a single 2x2 degree district containing (1, 1).
func squareSource(t *testing.T) *memSource {
	t.Helper()
	ring := geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 2, 0, 2, 2, 0, 2, 0, 0})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(ring))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))
	return &memSource{features: []region.Feature{{Name: "Chennai District", Geom: mp}}}
}

func testGrid() raster.Grid {
	return raster.Grid{CRS: "EPSG:4326", West: 0, North: 2, Scale: 1, Width: 2, Height: 2}
}

// landcoverScene labels the top row urban (class 6) and the bottom row water.
func landcoverScene(id string, acquired time.Time) raster.Scene {
	r := raster.New(testGrid())
	r.Set(0, 0, 6)
	r.Set(1, 0, 6)
	r.Set(0, 1, 0)
	r.Set(1, 1, 0)
	return raster.Scene{ID: id, AcquiredAt: acquired, Raster: r}
}

// thermalScene puts a cool and a hot pixel on the urban row so the urban
// mean lands exactly on 300 K.
func thermalScene(id string, acquired time.Time, cloud float64) raster.Scene {
	r := raster.New(testGrid())
	r.Set(0, 0, 298.5)
	r.Set(1, 0, 301.5)
	r.Set(0, 1, 300)
	r.Set(1, 1, 300)
	return raster.Scene{
		ID:         id,
		AcquiredAt: acquired,
		CloudCover: cloud,
		Props:      map[string]float64{"mult": 1, "add": 0},
		Raster:     r,
	}
}

func testConfig(outDir string) *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			CenterLng:       1,
			CenterLat:       1,
			StartDate:       "2023-01-01",
			EndDate:         "2024-01-01",
			MonthFrom:       5,
			MonthTo:         9,
			MaxCloudPercent: 10,
			UrbanClass:      6,
			ClassBreaks:     []float64{0, 0.005, 0.010, 0.015, 0.020},
			CalibScaleProp:  "mult",
			CalibOffsetProp: "add",
			MeanScale:       1,
			MaxPixels:       1000,
		},
		Export: config.ExportConfig{Scale: 1, CRS: "EPSG:4326", MaxPixels: 1000, OutputDir: outDir},
	}
}

func june(day int) time.Time {
	return time.Date(2023, 6, day, 0, 0, 0, 0, time.UTC)
}

func newTestPipeline(t *testing.T, cfg *config.Config, st store.Store, thermal ...raster.Scene) *Pipeline {
	t.Helper()
	return New(
		cfg,
		st,
		squareSource(t),
		catalog.NewMemory(landcoverScene("dw1", june(1)), landcoverScene("dw2", june(17))),
		catalog.NewMemory(thermal...),
		&export.FileSink{Dir: cfg.Export.OutputDir},
	)
}

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t.TempDir())
	p := newTestPipeline(t, cfg, nil, thermalScene("lst1", june(5), 2))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Chennai District"}, result.Region)
	assert.Equal(t, 2, result.LandcoverScenes)
	assert.Equal(t, 1, result.ThermalScenes)
	assert.InDelta(t, 300.0, result.MeanKelvin, 1e-9)
	assert.EqualValues(t, 4, result.MeanPixels, "every valid composite pixel in the region contributes to the mean")
	assert.EqualValues(t, 2, result.UrbanPixels)

	// The cool urban pixel sits below the first break (background), the hot
	// one lands exactly on the 0.005 cut and takes the higher class.
	assert.EqualValues(t, 2, result.ClassifiedPixels)
	byClass := make(map[int]int64)
	for _, c := range result.ClassCounts {
		byClass[c.Class] = c.Pixels
	}
	assert.EqualValues(t, 0, byClass[1])
	assert.EqualValues(t, 1, byClass[2])

	require.NotEmpty(t, result.ExportPath)
	assert.Equal(t, filepath.Join(cfg.Export.OutputDir, "uhi_chennai_district.json"), result.ExportPath)
	_, statErr := os.Stat(result.ExportPath)
	assert.NoError(t, statErr)
}

func TestPipelineRunPersists(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(context.Background()))

	cfg := testConfig(t.TempDir())
	p := newTestPipeline(t, cfg, st, thermalScene("lst1", june(5), 2))

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.InDelta(t, 300.0, runs[0].Result.MeanKelvin, 1e-9)
	assert.Len(t, runs[0].Result.Phases, 6)
}

func TestPipelineEmptyThermalWindow(t *testing.T) {
	cfg := testConfig(t.TempDir())
	// Only an overcast scene; the cloud filter leaves nothing.
	p := newTestPipeline(t, cfg, nil, thermalScene("overcast", june(5), 50))

	result, err := p.Run(context.Background())
	require.NoError(t, err, "an empty window is a defined, empty product")

	assert.Equal(t, 0, result.ThermalScenes)
	assert.EqualValues(t, 0, result.ClassifiedPixels)
	for _, c := range result.ClassCounts {
		assert.EqualValues(t, 0, c.Pixels)
	}
	assert.NotEmpty(t, result.ExportPath)
}

func TestPipelineThermalIgnoresMonthWindow(t *testing.T) {
	cfg := testConfig(t.TempDir())
	// A clear winter acquisition is still a valid thermal sample; only the
	// land-cover series is restricted to the month window.
	p := newTestPipeline(t, cfg, nil, thermalScene("winter", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), 2))

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ThermalScenes)
	assert.InDelta(t, 300.0, result.MeanKelvin, 1e-9)
}

func TestPipelineLandcoverMonthWindow(t *testing.T) {
	cfg := testConfig(t.TempDir())

	// Two off-season scenes label everything urban; the one in-window scene
	// labels everything non-urban and must decide the mask alone.
	winterUrban := func(id string, acquired time.Time) raster.Scene {
		r := raster.New(testGrid())
		for row := 0; row < 2; row++ {
			for col := 0; col < 2; col++ {
				r.Set(col, row, 6)
			}
		}
		return raster.Scene{ID: id, AcquiredAt: acquired, Raster: r}
	}
	summerWater := raster.New(testGrid())
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			summerWater.Set(col, row, 0)
		}
	}

	p := New(
		cfg,
		nil,
		squareSource(t),
		catalog.NewMemory(
			winterUrban("jan1", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)),
			winterUrban("jan2", time.Date(2023, 1, 21, 0, 0, 0, 0, time.UTC)),
			raster.Scene{ID: "jun", AcquiredAt: june(17), Raster: summerWater},
		),
		catalog.NewMemory(thermalScene("lst1", june(5), 2)),
		&export.FileSink{Dir: cfg.Export.OutputDir},
	)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.LandcoverScenes, "off-season land-cover scenes are excluded")
	assert.EqualValues(t, 0, result.UrbanPixels)
	assert.EqualValues(t, 0, result.ClassifiedPixels)
}

func TestPipelineMeanIsRegionWide(t *testing.T) {
	cfg := testConfig(t.TempDir())

	// Hot urban row, cool non-urban row. The mean must average both rows
	// (300 K), not just the urban core (310 K); the urban pixels then sit
	// 3.3% above it, well past the last cut point.
	hot := raster.New(testGrid())
	hot.Set(0, 0, 310)
	hot.Set(1, 0, 310)
	hot.Set(0, 1, 290)
	hot.Set(1, 1, 290)
	scene := raster.Scene{
		ID:         "contrast",
		AcquiredAt: june(5),
		CloudCover: 2,
		Props:      map[string]float64{"mult": 1, "add": 0},
		Raster:     hot,
	}

	p := newTestPipeline(t, cfg, nil, scene)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 300.0, result.MeanKelvin, 1e-9)
	assert.EqualValues(t, 4, result.MeanPixels)
	assert.EqualValues(t, 2, result.ClassifiedPixels)

	byClass := make(map[int]int64)
	for _, c := range result.ClassCounts {
		byClass[c.Class] = c.Pixels
	}
	assert.EqualValues(t, 2, byClass[5])
}

func TestPipelineCloudFilterIsStrict(t *testing.T) {
	cfg := testConfig(t.TempDir())
	p := newTestPipeline(t, cfg, nil,
		thermalScene("clear", june(5), 2),
		thermalScene("exactly-ten", june(21), 10),
	)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ThermalScenes, "cloud threshold is exclusive")
}

func TestPipelineMissingCalibration(t *testing.T) {
	cfg := testConfig(t.TempDir())
	bad := thermalScene("uncalibrated", june(5), 2)
	bad.Props = map[string]float64{"mult": 1} // offset missing

	p := newTestPipeline(t, cfg, nil, bad)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, raster.ErrMissingCalibration))
}

func TestPipelinePixelBudget(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(context.Background()))

	cfg := testConfig(t.TempDir())
	cfg.Analysis.MaxPixels = 1

	p := newTestPipeline(t, cfg, st, thermalScene("lst1", june(5), 2))

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, raster.ErrPixelBudgetExceeded))

	runs, listErr := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.NotEmpty(t, runs[0].Result.Error)
}

func TestPipelineRegionNotFound(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Analysis.CenterLng = 50 // far outside the square

	p := newTestPipeline(t, cfg, nil, thermalScene("lst1", june(5), 2))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, region.ErrRegionNotFound))
}

func TestPipelineKeepIntermediate(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Analysis.KeepIntermediate = true

	p := newTestPipeline(t, cfg, nil, thermalScene("lst1", june(5), 2))

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"uhi_chennai_district_lst.json", "uhi_chennai_district_urban.json"} {
		_, statErr := os.Stat(filepath.Join(cfg.Export.OutputDir, name))
		assert.NoError(t, statErr, name)
	}
}

func TestCountClasses(t *testing.T) {
	r := raster.New(testGrid())
	r.Set(0, 0, 0) // background: valid but not a legend class
	r.Set(1, 0, 2)
	r.Set(0, 1, 2)
	r.Set(1, 1, 5)

	counts := CountClasses(r, raster.DefaultLegend())
	require.Len(t, counts, 5)
	byClass := make(map[int]int64)
	for _, c := range counts {
		byClass[c.Class] = c.Pixels
	}
	assert.EqualValues(t, 2, byClass[2])
	assert.EqualValues(t, 1, byClass[5])
	assert.EqualValues(t, 0, byClass[1])
}

func TestArtifactName(t *testing.T) {
	src := squareSource(t)
	reg, err := region.Resolve(1, 1, src.features, 0)
	require.NoError(t, err)
	assert.Equal(t, "uhi_chennai_district", artifactName(reg))
}
