package region

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// ShapefileSource loads boundary features from an administrative boundary
// shapefile, e.g. the GAUL level-1 layer.
type ShapefileSource struct {
	Path      string
	NameField string

	// Charset names the DBF attribute encoding when it is not UTF-8,
	// e.g. "windows-1252" for most GADM layers.
	Charset string
}

// Load reads every polygon record from the shapefile. Records without a
// usable geometry are skipped with a debug log, mirroring how upstream
// boundary layers carry the occasional malformed record.
func (s *ShapefileSource) Load(ctx context.Context) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "region: load boundaries")
	}

	var dec *encoding.Decoder
	if s.Charset != "" {
		enc, err := htmlindex.Get(s.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "region: unknown charset %q", s.Charset)
		}
		dec = enc.NewDecoder()
	}

	reader, err := shp.Open(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", s.Path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, s.NameField)

	var features []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		var name string
		if nameIdx >= 0 {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
			if dec != nil {
				if decoded, decErr := dec.String(name); decErr == nil {
					name = decoded
				}
			}
		}
		features = append(features, Feature{Name: name, Geom: mp})
	}

	if skipped > 0 {
		zap.L().Debug("region: skipped shapefile records",
			zap.String("path", s.Path),
			zap.Int("skipped", skipped),
		)
	}
	zap.L().Info("boundary dataset loaded",
		zap.String("path", s.Path),
		zap.Int("features", len(features)),
	)
	return features, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if
// not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("region: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("region: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
