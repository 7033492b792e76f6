// Package pipeline orchestrates the heat-island analysis: boundary
// resolution, urban mask and thermal composite construction, deviation
// classification and export.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/uhi-cli/internal/catalog"
	"github.com/sells-group/uhi-cli/internal/config"
	"github.com/sells-group/uhi-cli/internal/export"
	"github.com/sells-group/uhi-cli/internal/model"
	"github.com/sells-group/uhi-cli/internal/raster"
	"github.com/sells-group/uhi-cli/internal/region"
	"github.com/sells-group/uhi-cli/internal/store"
)

// Pipeline wires the analysis stages together. The store is optional; a nil
// store runs the analysis without persistence.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	boundary  region.Source
	landcover catalog.Catalog
	thermal   catalog.Catalog
	sink      export.Sink
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	boundary region.Source,
	landcover catalog.Catalog,
	thermal catalog.Catalog,
	sink export.Sink,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		boundary:  boundary,
		landcover: landcover,
		thermal:   thermal,
		sink:      sink,
	}
}

// ParamsFromConfig snapshots the analysis configuration into the immutable
// parameter record stored with every run.
func ParamsFromConfig(cfg *config.Config) model.Parameters {
	return model.Parameters{
		CenterLng:       cfg.Analysis.CenterLng,
		CenterLat:       cfg.Analysis.CenterLat,
		SimplifyMeters:  cfg.Analysis.SimplifyMeters,
		StartDate:       cfg.Analysis.StartDate,
		EndDate:         cfg.Analysis.EndDate,
		MonthFrom:       cfg.Analysis.MonthFrom,
		MonthTo:         cfg.Analysis.MonthTo,
		MaxCloudPercent: cfg.Analysis.MaxCloudPercent,
		UrbanClass:      cfg.Analysis.UrbanClass,
		ClassBreaks:     cfg.Analysis.ClassBreaks,
		MeanScale:       cfg.Analysis.MeanScale,
		MaxPixels:       cfg.Analysis.MaxPixels,
		ExportScale:     cfg.Export.Scale,
		ExportCRS:       cfg.Export.CRS,
	}
}

// Run executes the full analysis.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	a := p.cfg.Analysis
	if err := a.Validate(); err != nil {
		return nil, err
	}
	from, to, err := a.DateRange()
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.Float64("lng", a.CenterLng), zap.Float64("lat", a.CenterLat))
	log.Info("pipeline: starting analysis")

	result := &model.RunResult{}

	var runID string
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, ParamsFromConfig(p.cfg))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}

	setStatus := func(status model.RunStatus) {
		if p.store == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(ctx, runID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	// Phase tracking helper with mutex for concurrent access.
	var phasesMu sync.Mutex
	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		var phase *model.RunPhase
		if p.store != nil {
			var phaseErr error
			phase, phaseErr = p.store.CreatePhase(ctx, runID, name)
			if phaseErr != nil {
				log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
			}
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if phase != nil {
			_ = p.store.CompletePhase(ctx, phase.ID, phaseResult)
		}
		phasesMu.Lock()
		result.Phases = append(result.Phases, *phaseResult)
		phasesMu.Unlock()
		return fnErr
	}

	fail := func(err error) (*model.RunResult, error) {
		result.Error = err.Error()
		if p.store != nil {
			if storeErr := p.store.UpdateRunResult(ctx, runID, model.RunStatusFailed, result); storeErr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(storeErr))
			}
		}
		return result, err
	}

	// ===== Boundary resolution =====
	setStatus(model.RunStatusResolving)

	var reg *region.Region
	if err := trackPhase("resolve_region", func() (*model.PhaseResult, error) {
		features, loadErr := p.boundary.Load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		r, resolveErr := region.Resolve(a.CenterLng, a.CenterLat, features, a.SimplifyMeters)
		if resolveErr != nil {
			return nil, resolveErr
		}
		reg = r
		return &model.PhaseResult{
			Metadata: map[string]any{
				"dataset_features": len(features),
				"region":           strings.Join(r.Names(), ", "),
			},
		}, nil
	}); err != nil {
		return fail(err)
	}
	result.Region = reg.Names()

	// ===== Scene queries (land cover and thermal in parallel) =====
	setStatus(model.RunStatusMasking)

	bounds := reg.Bounds()
	var lcStack, thermalStack raster.Stack

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trackPhase("landcover_query", func() (*model.PhaseResult, error) {
			// The month window restricts which land-cover labels vote in the
			// mode; off-season scenes would skew the mask.
			stack, qErr := p.landcover.Scenes(gCtx, catalog.Query{
				From: from, To: to,
				MonthFrom: a.MonthFrom, MonthTo: a.MonthTo,
				MaxCloud: -1,
				Bounds:   bounds,
			})
			if qErr != nil {
				return nil, qErr
			}
			lcStack = stack
			return &model.PhaseResult{Metadata: map[string]any{"scenes": len(stack)}}, nil
		})
	})
	g.Go(func() error {
		return trackPhase("thermal_query", func() (*model.PhaseResult, error) {
			// Thermal scenes are filtered by date, cloud and extent only;
			// the month window applies to the land-cover series.
			stack, qErr := p.thermal.Scenes(gCtx, catalog.Query{
				From: from, To: to,
				MaxCloud: a.MaxCloudPercent,
				Bounds:   bounds,
			})
			if qErr != nil {
				return nil, qErr
			}
			thermalStack = stack
			return &model.PhaseResult{Metadata: map[string]any{"scenes": len(stack)}}, nil
		})
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	result.LandcoverScenes = len(lcStack)
	result.ThermalScenes = len(thermalStack)

	// ===== Expression graph =====
	// Nothing below touches pixels until a terminal consumer forces it.
	grid := raster.GridForBounds(bounds, p.cfg.Export.Scale, p.cfg.Export.CRS)
	urbanMask := raster.ModeMask(lcStack, grid, a.UrbanClass)
	lst := raster.MedianComposite(thermalStack, grid, a.CalibScaleProp, a.CalibOffsetProp)
	roiLST := raster.Clip(lst, reg)

	// ===== Region mean =====
	setStatus(model.RunStatusCompositing)

	// The mean is region-wide: every valid composite pixel in the ROI
	// contributes, urban or not. The urban mask only gates classification.
	var mean raster.Stat
	if err := trackPhase("composite_mean", func() (*model.PhaseResult, error) {
		stat, meanErr := raster.RegionMean(ctx, roiLST, reg, a.MeanScale, a.MaxPixels)
		if meanErr != nil {
			return nil, meanErr
		}
		mean = stat
		return &model.PhaseResult{
			Metadata: map[string]any{
				"mean_kelvin": stat.Value,
				"pixels":      stat.Pixels,
				"valid":       stat.Valid,
			},
		}, nil
	}); err != nil {
		return fail(err)
	}
	result.MeanKelvin = mean.Value
	result.MeanPixels = mean.Pixels

	// ===== Classification =====
	setStatus(model.RunStatusClassifying)

	var classified *raster.Raster
	if err := trackPhase("classify", func() (*model.PhaseResult, error) {
		if !mean.Valid {
			// No valid urban thermal pixels in the window: the product is
			// defined and empty, not an error.
			log.Warn("pipeline: no valid pixels for region mean, classified output is all-invalid")
			classified = raster.New(grid)
			return &model.PhaseResult{Metadata: map[string]any{"classified_pixels": int64(0)}}, nil
		}
		expr := raster.Clip(
			raster.MaskBy(
				raster.ClassifyStep(raster.Deviation(lst, mean.Value), raster.ClassBreaks(a.ClassBreaks)),
				urbanMask,
			),
			reg,
		)
		r, clsErr := expr.Materialize(ctx)
		if clsErr != nil {
			return nil, clsErr
		}
		classified = r
		return &model.PhaseResult{Metadata: map[string]any{"classified_pixels": r.ValidCount()}}, nil
	}); err != nil {
		return fail(err)
	}
	result.ClassifiedPixels = classified.ValidCount()
	result.ClassCounts = CountClasses(classified, raster.DefaultLegend())

	if urban, err := urbanMask.Materialize(ctx); err == nil {
		result.UrbanPixels = countOnes(urban)
	}

	// ===== Export =====
	setStatus(model.RunStatusExporting)

	if err := trackPhase("export", func() (*model.PhaseResult, error) {
		name := artifactName(reg)
		path, expErr := p.sink.Export(ctx, export.Request{
			Name:      name,
			Raster:    classified,
			Legend:    raster.DefaultLegend(),
			Region:    reg,
			Scale:     p.cfg.Export.Scale,
			CRS:       p.cfg.Export.CRS,
			MaxPixels: p.cfg.Export.MaxPixels,
		})
		if expErr != nil {
			return nil, expErr
		}
		result.ExportPath = path

		if a.KeepIntermediate {
			if expErr := p.exportIntermediates(ctx, name, reg, lst, urbanMask); expErr != nil {
				return nil, expErr
			}
		}
		return &model.PhaseResult{Metadata: map[string]any{"path": path}}, nil
	}); err != nil {
		return fail(err)
	}

	if p.store != nil {
		if err := p.store.UpdateRunResult(ctx, runID, model.RunStatusComplete, result); err != nil {
			log.Warn("pipeline: failed to record result", zap.Error(err))
		}
	}

	log.Info("pipeline: analysis complete",
		zap.Strings("region", result.Region),
		zap.Float64("mean_kelvin", result.MeanKelvin),
		zap.Int64("classified_pixels", result.ClassifiedPixels),
	)
	return result, nil
}

// exportIntermediates writes the thermal composite and the urban mask next
// to the classified product.
func (p *Pipeline) exportIntermediates(ctx context.Context, name string, reg *region.Region, lst, urban raster.Expr) error {
	for suffix, expr := range map[string]raster.Expr{
		"_lst":   lst,
		"_urban": urban,
	} {
		r, err := expr.Materialize(ctx)
		if err != nil {
			return err
		}
		if _, err := p.sink.Export(ctx, export.Request{
			Name:      name + suffix,
			Raster:    r.ClipTo(reg),
			Region:    reg,
			Scale:     p.cfg.Export.Scale,
			CRS:       p.cfg.Export.CRS,
			MaxPixels: p.cfg.Export.MaxPixels,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CountClasses tallies valid pixels per legend class.
func CountClasses(r *raster.Raster, legend raster.Legend) []model.ClassCount {
	tally := make(map[int]int64)
	g := r.Grid()
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if v, ok := r.At(col, row); ok {
				tally[int(v)]++
			}
		}
	}

	counts := make([]model.ClassCount, 0, len(legend))
	for _, e := range legend {
		counts = append(counts, model.ClassCount{
			Class:  e.Class,
			Label:  e.Label,
			Pixels: tally[e.Class],
		})
	}
	return counts
}

func countOnes(r *raster.Raster) int64 {
	var n int64
	g := r.Grid()
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if v, ok := r.At(col, row); ok && v == 1 {
				n++
			}
		}
	}
	return n
}

// artifactName derives a filesystem-safe export name from the region.
func artifactName(reg *region.Region) string {
	names := reg.Names()
	if len(names) == 0 || names[0] == "" {
		return "uhi"
	}
	slug := strings.ToLower(names[0])
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	return fmt.Sprintf("uhi_%s", strings.Trim(slug, "_"))
}
