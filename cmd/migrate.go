package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run store and scene archive schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("run store migrated", zap.String("driver", cfg.Store.Driver))

		if cfg.Catalog.Driver == "sqlite" {
			_, _, closeCatalogs, err := initCatalogs(ctx)
			if err != nil {
				return err
			}
			closeCatalogs()
			zap.L().Info("scene archive migrated", zap.String("path", cfg.Catalog.SQLitePath))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
