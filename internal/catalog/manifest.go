package catalog

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/uhi-cli/internal/raster"
)

// manifestFile is the YAML shape of a scene manifest.
type manifestFile struct {
	CRS    string          `yaml:"crs"`
	Scenes []manifestScene `yaml:"scenes"`
}

type manifestScene struct {
	ID         string             `yaml:"id"`
	AcquiredAt string             `yaml:"acquired_at"`
	CloudCover float64            `yaml:"cloud_cover"`
	Props      map[string]float64 `yaml:"props"`
	Grid       manifestGrid       `yaml:"grid"`
	Rows       [][]*float64       `yaml:"rows"`
}

type manifestGrid struct {
	West   float64 `yaml:"west"`
	North  float64 `yaml:"north"`
	Scale  float64 `yaml:"scale"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
}

// LoadManifest reads a YAML scene manifest into an in-memory catalog.
// Null cells in the row data become invalid pixels.
func LoadManifest(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read manifest %s", path)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: manifest %s", path)
	}
	zap.L().Info("scene manifest loaded", zap.String("path", path), zap.Int("scenes", len(m.stack)))
	return m, nil
}

// ParseManifest parses YAML manifest bytes into an in-memory catalog.
func ParseManifest(data []byte) (*Memory, error) {
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal manifest")
	}

	scenes := make([]raster.Scene, 0, len(mf.Scenes))
	for _, ms := range mf.Scenes {
		acquired, err := time.Parse("2006-01-02", ms.AcquiredAt)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: scene %s acquired_at", ms.ID)
		}
		if ms.Grid.Width <= 0 || ms.Grid.Height <= 0 || ms.Grid.Scale <= 0 {
			return nil, eris.Errorf("catalog: scene %s has invalid grid", ms.ID)
		}
		if len(ms.Rows) != ms.Grid.Height {
			return nil, eris.Errorf("catalog: scene %s has %d rows, grid says %d", ms.ID, len(ms.Rows), ms.Grid.Height)
		}

		r := raster.New(raster.Grid{
			CRS:    mf.CRS,
			West:   ms.Grid.West,
			North:  ms.Grid.North,
			Scale:  ms.Grid.Scale,
			Width:  ms.Grid.Width,
			Height: ms.Grid.Height,
		})
		for row, cells := range ms.Rows {
			if len(cells) != ms.Grid.Width {
				return nil, eris.Errorf("catalog: scene %s row %d has %d cells, grid says %d", ms.ID, row, len(cells), ms.Grid.Width)
			}
			for col, cell := range cells {
				if cell != nil {
					r.Set(col, row, *cell)
				}
			}
		}

		scenes = append(scenes, raster.Scene{
			ID:         ms.ID,
			AcquiredAt: acquired,
			CloudCover: ms.CloudCover,
			Props:      ms.Props,
			Raster:     r,
		})
	}

	return NewMemory(scenes...), nil
}
