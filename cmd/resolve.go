package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/region"
)

var (
	resolveLng float64
	resolveLat float64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the administrative region containing a point",
	Long:  "Loads the boundary dataset and reports which features contain the point, after simplifying their geometry with the configured tolerance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lng, lat := cfg.Analysis.CenterLng, cfg.Analysis.CenterLat
		if cmd.Flags().Changed("lng") {
			lng = resolveLng
		}
		if cmd.Flags().Changed("lat") {
			lat = resolveLat
		}

		boundary, err := initBoundary()
		if err != nil {
			return err
		}
		features, err := boundary.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "load boundaries")
		}

		reg, err := region.Resolve(lng, lat, features, cfg.Analysis.SimplifyMeters)
		if err != nil {
			return eris.Wrap(err, "resolve region")
		}

		b := reg.Bounds()
		out := struct {
			Lng      float64   `json:"lng"`
			Lat      float64   `json:"lat"`
			Names    []string  `json:"names"`
			Features int       `json:"dataset_features"`
			Bounds   []float64 `json:"bounds"`
		}{
			Lng:      lng,
			Lat:      lat,
			Names:    reg.Names(),
			Features: len(features),
			Bounds:   []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)},
		}

		zap.L().Info("region resolved", zap.Strings("names", out.Names))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	resolveCmd.Flags().Float64Var(&resolveLng, "lng", 0, "longitude (default from config)")
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "latitude (default from config)")
	rootCmd.AddCommand(resolveCmd)
}
