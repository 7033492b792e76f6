package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/raster"
)

// FileSink writes the export as a JSON raster document under Dir. The
// document carries the grid, the legend, the boundary as GeoJSON features
// and the cell rows, with invalid cells encoded as null. The same nullable
// row shape the manifest catalog reads, so an export can be fed back in.
type FileSink struct {
	Dir string
}

type document struct {
	Name   string            `json:"name"`
	CRS    string            `json:"crs"`
	Scale  float64           `json:"scale"`
	Grid   raster.Grid       `json:"grid"`
	Legend raster.Legend     `json:"legend,omitempty"`
	Region featureCollection `json:"region"`
	Rows   [][]*float64      `json:"rows"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   json.RawMessage   `json:"geometry"`
}

// Export writes the request to Dir/<name>.json and returns the path.
func (s *FileSink) Export(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "export")
	}

	doc := document{
		Name:   req.Name,
		CRS:    req.CRS,
		Scale:  req.Scale,
		Grid:   req.Raster.Grid(),
		Legend: req.Legend,
		Region: featureCollection{Type: "FeatureCollection", Features: []feature{}},
		Rows:   encodeRows(req.Raster),
	}

	if req.Region != nil {
		for _, f := range req.Region.Features() {
			geomJSON, err := geojson.Marshal(f.Geom)
			if err != nil {
				return "", eris.Wrapf(err, "export: encode boundary %q", f.Name)
			}
			doc.Region.Features = append(doc.Region.Features, feature{
				Type:       "Feature",
				Properties: map[string]string{"name": f.Name},
				Geometry:   json.RawMessage(geomJSON),
			})
		}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}

	path := filepath.Join(s.Dir, req.Name+".json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "export: marshal document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}

	zap.L().Info("export written",
		zap.String("path", path),
		zap.Int64("pixels", req.Raster.Grid().Pixels()),
		zap.Int64("valid", req.Raster.ValidCount()),
	)
	return path, nil
}

// encodeRows converts the raster to row-major nullable cells.
func encodeRows(r *raster.Raster) [][]*float64 {
	g := r.Grid()
	rows := make([][]*float64, g.Height)
	for row := 0; row < g.Height; row++ {
		cells := make([]*float64, g.Width)
		for col := 0; col < g.Width; col++ {
			if v, ok := r.At(col, row); ok {
				v := v
				cells[col] = &v
			}
		}
		rows[row] = cells
	}
	return rows
}
