package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/uhi-cli/internal/catalog"
	"github.com/sells-group/uhi-cli/internal/export"
	"github.com/sells-group/uhi-cli/internal/region"
	"github.com/sells-group/uhi-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "uhi.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBoundary() (region.Source, error) {
	if cfg.Boundary.ShapefilePath == "" {
		return nil, eris.New("boundary.shapefile_path is required (run `uhi fetch boundary` first)")
	}
	return &region.ShapefileSource{
		Path:      cfg.Boundary.ShapefilePath,
		NameField: cfg.Boundary.NameField,
		Charset:   cfg.Boundary.Charset,
	}, nil
}

// initCatalogs opens the land cover and thermal scene catalogs. The returned
// close function is a no-op for manifest catalogs.
func initCatalogs(ctx context.Context) (landcover, thermal catalog.Catalog, closeFn func(), err error) {
	switch cfg.Catalog.Driver {
	case "manifest":
		lc, err := catalog.LoadManifest(cfg.Catalog.LandcoverManifest)
		if err != nil {
			return nil, nil, nil, err
		}
		th, err := catalog.LoadManifest(cfg.Catalog.ThermalManifest)
		if err != nil {
			return nil, nil, nil, err
		}
		return lc, th, func() {}, nil
	case "sqlite":
		lc, err := catalog.OpenSQLite(cfg.Catalog.SQLitePath, "landcover")
		if err != nil {
			return nil, nil, nil, err
		}
		th, err := catalog.OpenSQLite(cfg.Catalog.SQLitePath, "thermal")
		if err != nil {
			lc.Close()
			return nil, nil, nil, err
		}
		if err := lc.Migrate(ctx); err != nil {
			lc.Close()
			th.Close()
			return nil, nil, nil, err
		}
		return lc, th, func() {
			_ = lc.Close()
			_ = th.Close()
		}, nil
	default:
		return nil, nil, nil, eris.Errorf("unsupported catalog driver: %s", cfg.Catalog.Driver)
	}
}

func initSink() export.Sink {
	return &export.FileSink{Dir: cfg.Export.OutputDir}
}
