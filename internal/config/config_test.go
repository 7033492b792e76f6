package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 80.2707, cfg.Analysis.CenterLng, 1e-9)
	assert.InDelta(t, 13.0827, cfg.Analysis.CenterLat, 1e-9)
	assert.Equal(t, 6, cfg.Analysis.UrbanClass)
	assert.Equal(t, []float64{0, 0.005, 0.010, 0.015, 0.020}, cfg.Analysis.ClassBreaks)
	assert.Equal(t, int64(1e13), cfg.Analysis.MaxPixels)
	assert.Equal(t, "EPSG:4326", cfg.Export.CRS)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestAnalysisValidate(t *testing.T) {
	valid := AnalysisConfig{
		SimplifyMeters:  1000,
		StartDate:       "2023-01-01",
		EndDate:         "2024-01-01",
		MonthFrom:       5,
		MonthTo:         9,
		MaxCloudPercent: 10,
		UrbanClass:      6,
		ClassBreaks:     []float64{0, 0.005, 0.010, 0.015, 0.020},
		MeanScale:       100,
		MaxPixels:       1e13,
	}

	tests := []struct {
		name    string
		mutate  func(*AnalysisConfig)
		wantErr string
	}{
		{"valid", func(a *AnalysisConfig) {}, ""},
		{"negative tolerance", func(a *AnalysisConfig) { a.SimplifyMeters = -1 }, "simplify_meters"},
		{"month window inverted", func(a *AnalysisConfig) { a.MonthFrom = 10; a.MonthTo = 4 }, "month window"},
		{"month out of range", func(a *AnalysisConfig) { a.MonthTo = 13 }, "month window"},
		{"wrong break count", func(a *AnalysisConfig) { a.ClassBreaks = []float64{0, 0.01} }, "class_breaks"},
		{"non-monotonic breaks", func(a *AnalysisConfig) { a.ClassBreaks = []float64{0, 0.01, 0.005, 0.015, 0.02} }, "strictly increasing"},
		{"zero pixel budget", func(a *AnalysisConfig) { a.MaxPixels = 0 }, "max_pixels"},
		{"zero mean scale", func(a *AnalysisConfig) { a.MeanScale = 0 }, "mean_scale"},
		{"bad date", func(a *AnalysisConfig) { a.StartDate = "2023/01/01" }, "start_date"},
		{"range inverted", func(a *AnalysisConfig) { a.StartDate = "2024-06-01" }, "not after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	a := AnalysisConfig{StartDate: "2023-01-01", EndDate: "2024-01-01"}
	from, to, err := a.DateRange()
	require.NoError(t, err)
	assert.Equal(t, 2023, from.Year())
	assert.Equal(t, 2024, to.Year())
}
