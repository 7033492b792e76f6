package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig holds every parameter of the heat-island analysis. It is
// threaded through the pipeline as an immutable value; stages never read
// ambient state.
type AnalysisConfig struct {
	CenterLng        float64   `yaml:"center_lng" mapstructure:"center_lng"`
	CenterLat        float64   `yaml:"center_lat" mapstructure:"center_lat"`
	SimplifyMeters   float64   `yaml:"simplify_meters" mapstructure:"simplify_meters"`
	StartDate        string    `yaml:"start_date" mapstructure:"start_date"`
	EndDate          string    `yaml:"end_date" mapstructure:"end_date"`
	MonthFrom        int       `yaml:"month_from" mapstructure:"month_from"`
	MonthTo          int       `yaml:"month_to" mapstructure:"month_to"`
	MaxCloudPercent  float64   `yaml:"max_cloud_percent" mapstructure:"max_cloud_percent"`
	UrbanClass       int       `yaml:"urban_class" mapstructure:"urban_class"`
	ClassBreaks      []float64 `yaml:"class_breaks" mapstructure:"class_breaks"`
	CalibScaleProp   string    `yaml:"calib_scale_prop" mapstructure:"calib_scale_prop"`
	CalibOffsetProp  string    `yaml:"calib_offset_prop" mapstructure:"calib_offset_prop"`
	MeanScale        float64   `yaml:"mean_scale" mapstructure:"mean_scale"`
	MaxPixels        int64     `yaml:"max_pixels" mapstructure:"max_pixels"`
	KeepIntermediate bool      `yaml:"keep_intermediate" mapstructure:"keep_intermediate"`
}

// DateRange parses the configured start/end dates.
func (a AnalysisConfig) DateRange() (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", a.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "config: parse start_date %q", a.StartDate)
	}
	to, err := time.Parse("2006-01-02", a.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "config: parse end_date %q", a.EndDate)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, eris.Errorf("config: end_date %s not after start_date %s", a.EndDate, a.StartDate)
	}
	return from, to, nil
}

// Validate checks the analysis parameters that have hard domain constraints.
func (a AnalysisConfig) Validate() error {
	if a.SimplifyMeters < 0 {
		return eris.Errorf("config: simplify_meters must be >= 0, got %g", a.SimplifyMeters)
	}
	if a.MonthFrom < 1 || a.MonthFrom > 12 || a.MonthTo < 1 || a.MonthTo > 12 || a.MonthFrom > a.MonthTo {
		return eris.Errorf("config: invalid month window %d..%d", a.MonthFrom, a.MonthTo)
	}
	if len(a.ClassBreaks) != 5 {
		return eris.Errorf("config: class_breaks needs 5 cut points, got %d", len(a.ClassBreaks))
	}
	for i := 1; i < len(a.ClassBreaks); i++ {
		if a.ClassBreaks[i] <= a.ClassBreaks[i-1] {
			return eris.Errorf("config: class_breaks must be strictly increasing at index %d", i)
		}
	}
	if a.MaxPixels <= 0 {
		return eris.Errorf("config: max_pixels must be positive, got %d", a.MaxPixels)
	}
	if a.MeanScale <= 0 {
		return eris.Errorf("config: mean_scale must be positive, got %g", a.MeanScale)
	}
	if _, _, err := a.DateRange(); err != nil {
		return err
	}
	return nil
}

// BoundaryConfig locates the administrative boundary dataset.
type BoundaryConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	NameField     string `yaml:"name_field" mapstructure:"name_field"`
	Charset       string `yaml:"charset" mapstructure:"charset"`
	SourceURL     string `yaml:"source_url" mapstructure:"source_url"`
}

// CatalogConfig configures the scene catalogs.
type CatalogConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"` // sqlite or manifest
	SQLitePath        string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	LandcoverManifest string `yaml:"landcover_manifest" mapstructure:"landcover_manifest"`
	ThermalManifest   string `yaml:"thermal_manifest" mapstructure:"thermal_manifest"`
}

// ExportConfig configures the export sink.
type ExportConfig struct {
	Scale     float64 `yaml:"scale" mapstructure:"scale"`
	CRS       string  `yaml:"crs" mapstructure:"crs"`
	MaxPixels int64   `yaml:"max_pixels" mapstructure:"max_pixels"`
	OutputDir string  `yaml:"output_dir" mapstructure:"output_dir"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults follow the reference Landsat 8 analysis: Chennai city point,
	// 2023 summer window, class 6 built area, 100 m working scale.
	v.SetDefault("analysis.center_lng", 80.2707)
	v.SetDefault("analysis.center_lat", 13.0827)
	v.SetDefault("analysis.simplify_meters", 1000.0)
	v.SetDefault("analysis.start_date", "2023-01-01")
	v.SetDefault("analysis.end_date", "2024-01-01")
	v.SetDefault("analysis.month_from", 5)
	v.SetDefault("analysis.month_to", 9)
	v.SetDefault("analysis.max_cloud_percent", 10.0)
	v.SetDefault("analysis.urban_class", 6)
	v.SetDefault("analysis.class_breaks", []float64{0, 0.005, 0.010, 0.015, 0.020})
	v.SetDefault("analysis.calib_scale_prop", "TEMPERATURE_MULT_BAND_ST_B10")
	v.SetDefault("analysis.calib_offset_prop", "TEMPERATURE_ADD_BAND_ST_B10")
	v.SetDefault("analysis.mean_scale", 100.0)
	v.SetDefault("analysis.max_pixels", int64(1e13))
	v.SetDefault("boundary.name_field", "ADM1_NAME")
	v.SetDefault("catalog.driver", "manifest")
	v.SetDefault("export.scale", 100.0)
	v.SetDefault("export.crs", "EPSG:4326")
	v.SetDefault("export.max_pixels", int64(1e13))
	v.SetDefault("export.output_dir", "out")
	v.SetDefault("fetch.user_agent", "uhi-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.temp_dir", "/tmp/uhi")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "uhi.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
