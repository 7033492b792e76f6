// Package export renders a classified raster and its context into portable
// artifacts: a JSON raster document with the boundary as GeoJSON, and an
// XLSX class report.
package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/uhi-cli/internal/raster"
	"github.com/sells-group/uhi-cli/internal/region"
)

// Request describes one export: the classified raster, its legend, and the
// boundary it was clipped to. Scale and CRS describe the raster's grid and
// are recorded in the artifact; MaxPixels bounds the artifact size.
type Request struct {
	Name      string
	Raster    *raster.Raster
	Legend    raster.Legend
	Region    *region.Region
	Scale     float64
	CRS       string
	MaxPixels int64
}

// Sink writes an export artifact and returns its location.
type Sink interface {
	Export(ctx context.Context, req Request) (string, error)
}

// validate applies the checks shared by all sinks. The pixel budget is
// enforced against the actual grid, so an oversized raster is refused even
// when every cell is invalid.
func validate(req Request) error {
	if req.Raster == nil {
		return eris.New("export: nil raster")
	}
	if req.Name == "" {
		return eris.New("export: empty artifact name")
	}
	if req.MaxPixels > 0 && req.Raster.Grid().Pixels() > req.MaxPixels {
		return eris.Wrapf(raster.ErrPixelBudgetExceeded,
			"export: %d pixels exceeds budget %d", req.Raster.Grid().Pixels(), req.MaxPixels)
	}
	return nil
}
