package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/export"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Write an XLSX class report for a completed run",
	Args:  cobra.ExactArgs(1),
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

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "report")
		}
		if run.Result == nil {
			return eris.Errorf("run %s has no result yet (status %s)", run.ID, run.Status)
		}

		if err := export.WriteClassReport(reportOut, run.Result.ClassCounts, run.Params); err != nil {
			return err
		}

		zap.L().Info("class report written",
			zap.String("run", run.ID),
			zap.String("path", reportOut),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "report.xlsx", "output path for the XLSX report")
	rootCmd.AddCommand(reportCmd)
}
