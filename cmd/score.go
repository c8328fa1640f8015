package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
)

var scoreFormat string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the final score and routing for a set of metrics",
	Long:  "Aggregates the five comparison metrics with the configured thresholds. Omitted metrics leave the score undefined, which routes to FULL_REVIEW.",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := metricsFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		if err := scoring.ValidateMetrics(m); err != nil {
			return err
		}

		router, err := scoring.NewRouter(cfg.Routing)
		if err != nil {
			return err
		}
		return printScore(cmd.OutOrStdout(), router, m, scoreFormat)
	},
}

type scoreReport struct {
	FinalScore *float64               `json:"final_score"`
	Routing    model.Routing          `json:"routing"`
	Breakdown  []scoring.Contribution `json:"breakdown"`
}

// metricsFromFlags reads only the metric flags the user set.
func metricsFromFlags(fs *pflag.FlagSet) (model.Metrics, error) {
	var m model.Metrics
	targets := map[string]**float64{
		"embedding":     &m.EmbeddingSimilarity,
		"factual":       &m.FactualAlignment,
		"contradiction": &m.ContradictionScore,
		"completeness":  &m.Completeness,
		"hallucination": &m.HallucinationRisk,
	}
	for name, dst := range targets {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetFloat64(name)
		if err != nil {
			return model.Metrics{}, err
		}
		*dst = &v
	}
	return m, nil
}

func printScore(out io.Writer, router *scoring.Router, m model.Metrics, format string) error {
	up := router.Score(m, nil)
	report := scoreReport{
		FinalScore: up.FinalScore,
		Routing:    up.Routing,
		Breakdown:  scoring.Breakdown(m),
	}
	if format != "table" {
		return writeStructured(out, report, format)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tWEIGHT\tRAW\tCONTRIBUTION")
	for _, c := range report.Breakdown {
		fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\n", c.Name, c.Weight, optFloat(c.Raw), optFloat(c.Contribution))
	}
	fmt.Fprintf(w, "FINAL\t\t\t%s\n", optFloat(report.FinalScore))
	fmt.Fprintf(w, "ROUTING\t\t\t%s\n", report.Routing)
	return w.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func init() {
	f := scoreCmd.Flags()
	f.Float64("embedding", 0, "embedding similarity [0,1]")
	f.Float64("factual", 0, "factual alignment [0,1]")
	f.Float64("contradiction", 0, "contradiction score [0,1], lower is better")
	f.Float64("completeness", 0, "completeness [0,1]")
	f.Float64("hallucination", 0, "hallucination risk [0,1], lower is better")
	f.StringVar(&scoreFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(scoreCmd)
}
