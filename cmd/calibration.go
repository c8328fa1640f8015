package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bisq-support/review-engine/internal/model"
)

var calibrationFormat string

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Inspect auto-send calibration",
}

var calibrationStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show calibration progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := buildApp(ctx, st)
		if err != nil {
			return err
		}
		status, err := a.Calibration.Status(ctx)
		if err != nil {
			return err
		}
		return printCalibration(cmd.OutOrStdout(), status, calibrationFormat)
	},
}

func printCalibration(out io.Writer, s *model.CalibrationStatus, format string) error {
	if format != "table" {
		return writeStructured(out, s, format)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SAMPLES\t%d / %d\n", s.SamplesCollected, s.SamplesRequired)
	fmt.Fprintf(w, "COMPLETE\t%t\n", s.IsComplete)
	fmt.Fprintf(w, "GOOD\t%d\n", s.GoodCount)
	fmt.Fprintf(w, "NEEDS IMPROVEMENT\t%d\n", s.NeedsImprovementCount)
	fmt.Fprintf(w, "AUTO APPROVE\t>= %.2f\n", s.AutoApproveThreshold)
	fmt.Fprintf(w, "SPOT CHECK\t>= %.2f\n", s.SpotCheckThreshold)
	if s.CompletedAt != nil {
		fmt.Fprintf(w, "COMPLETED AT\t%s\n", s.CompletedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func init() {
	calibrationStatusCmd.Flags().StringVar(&calibrationFormat, "format", "table", "output format: table, json or yaml")
	calibrationCmd.AddCommand(calibrationStatusCmd)
	rootCmd.AddCommand(calibrationCmd)
}
