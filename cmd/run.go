package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/pipeline"
	"github.com/sells-group/uhi-cli/internal/store"
)

var (
	runLng              float64
	runLat              float64
	runStartDate        string
	runEndDate          string
	runKeepIntermediate bool
	runNoStore          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the heat island analysis for the configured point",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("lng") {
			cfg.Analysis.CenterLng = runLng
		}
		if cmd.Flags().Changed("lat") {
			cfg.Analysis.CenterLat = runLat
		}
		if runStartDate != "" {
			cfg.Analysis.StartDate = runStartDate
		}
		if runEndDate != "" {
			cfg.Analysis.EndDate = runEndDate
		}
		if runKeepIntermediate {
			cfg.Analysis.KeepIntermediate = true
		}

		p, cleanup, err := buildPipeline(ctx, !runNoStore)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.Strings("region", result.Region),
			zap.Float64("mean_kelvin", result.MeanKelvin),
			zap.Int64("classified_pixels", result.ClassifiedPixels),
			zap.String("export_path", result.ExportPath),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// buildPipeline assembles a pipeline from the loaded config. withStore=false
// runs the analysis without persisting a run record.
func buildPipeline(ctx context.Context, withStore bool) (*pipeline.Pipeline, func(), error) {
	boundary, err := initBoundary()
	if err != nil {
		return nil, nil, err
	}

	landcover, thermal, closeCatalogs, err := initCatalogs(ctx)
	if err != nil {
		return nil, nil, err
	}

	var st store.Store
	if withStore {
		st, err = initStore(ctx)
		if err != nil {
			closeCatalogs()
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			closeCatalogs()
			return nil, nil, eris.Wrap(err, "migrate store")
		}
	}

	cleanup := func() {
		if st != nil {
			_ = st.Close()
		}
		closeCatalogs()
	}
	return pipeline.New(cfg, st, boundary, landcover, thermal, initSink()), cleanup, nil
}

func init() {
	runCmd.Flags().Float64Var(&runLng, "lng", 0, "center longitude (default from config)")
	runCmd.Flags().Float64Var(&runLat, "lat", 0, "center latitude (default from config)")
	runCmd.Flags().StringVar(&runStartDate, "start", "", "start date YYYY-MM-DD (default from config)")
	runCmd.Flags().StringVar(&runEndDate, "end", "", "end date YYYY-MM-DD, exclusive (default from config)")
	runCmd.Flags().BoolVar(&runKeepIntermediate, "keep-intermediate", false, "also export the thermal composite and urban mask")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "skip recording the run in the store")
	rootCmd.AddCommand(runCmd)
}
