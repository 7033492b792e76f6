package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/catalog"
)

var scenesCollection string

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "Manage the scene archive",
}

var scenesImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Import a YAML scene manifest into the SQLite scene archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Catalog.SQLitePath == "" {
			return eris.New("catalog.sqlite_path is not configured")
		}

		mem, err := catalog.LoadManifest(args[0])
		if err != nil {
			return err
		}
		stack, err := mem.Scenes(ctx, catalog.Query{MaxCloud: -1})
		if err != nil {
			return err
		}

		archive, err := catalog.OpenSQLite(cfg.Catalog.SQLitePath, scenesCollection)
		if err != nil {
			return err
		}
		defer archive.Close() //nolint:errcheck
		if err := archive.Migrate(ctx); err != nil {
			return err
		}

		for _, sc := range stack {
			if err := archive.AddScene(ctx, sc); err != nil {
				return eris.Wrapf(err, "import scene %s", sc.ID)
			}
		}

		zap.L().Info("scenes imported",
			zap.String("manifest", args[0]),
			zap.String("collection", scenesCollection),
			zap.Int("scenes", len(stack)),
		)
		return nil
	},
}

func init() {
	scenesImportCmd.Flags().StringVar(&scenesCollection, "collection", "thermal", "archive collection to import into (landcover or thermal)")
	scenesCmd.AddCommand(scenesImportCmd)
	rootCmd.AddCommand(scenesCmd)
}
