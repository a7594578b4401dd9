package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/kvcache-calc/kvcache"
	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

var (
	sweepSteps     int     // Number of memory points
	sweepMinMemory float64 // Lower end of the memory axis in GB
	sweepMaxMemory float64 // Upper end of the memory axis in GB
	sweepChart     bool    // Draw an ASCII chart below the table
	chartHeight    int     // Chart height in rows
	chartWidth     int     // Chart width in columns
)

// sweepResult is the structured output of the sweep command.
type sweepResult struct {
	Model        kvcache.ModelConfig         `json:"model" yaml:"model"`
	Conversation kvcache.ConversationPattern `json:"conversation" yaml:"conversation"`
	Heuristics   kvcache.Heuristics          `json:"heuristics" yaml:"heuristics"`
	Points       []kvcache.SweepPoint        `json:"points" yaml:"points"`
}

// sweepCmd evaluates the hit rate across a range of memory budgets
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep the hit rate over a range of available memory",
	Example: `  kvcache-calc sweep --preset llama3-8b --chart
  kvcache-calc sweep --preset qwen3-32b --min-memory 80 --max-memory 640 --steps 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		in, est, err := resolveInputs(cmd)
		if err != nil {
			return err
		}

		r, err := est.DefaultSweepRange(in.Model, in.System, sweepSteps)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("min-memory") {
			r.MinMemoryGB = sweepMinMemory
		}
		if cmd.Flags().Changed("max-memory") {
			r.MaxMemoryGB = sweepMaxMemory
		}
		logrus.Infof("Sweeping %d points from %.2f GB to %.2f GB", r.Steps, r.MinMemoryGB, r.MaxMemoryGB)

		points, err := est.Sweep(cmd.Context(), in.Model, in.Conversation, r)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format != report.FormatTable {
			return report.Write(w, format, sweepResult{
				Model: in.Model, Conversation: in.Conversation,
				Heuristics: est.Heuristics(), Points: points,
			})
		}
		report.SweepTable(w, points)
		fmt.Fprintf(w, "Hit rate ceiling for this traffic: %s\n", report.Percent(kvcache.MaxHitRate(in.Conversation)))
		if sweepChart {
			chart, err := report.HitRateChart(points, chartHeight, chartWidth)
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, chart)
		}
		return nil
	},
}

func init() {
	registerInputFlags(sweepCmd.Flags())
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", kvcache.DefaultSweepSteps, "Number of memory points (>= 2)")
	sweepCmd.Flags().Float64Var(&sweepMinMemory, "min-memory", 0, "Lowest memory budget in GB (default 1.5x model memory)")
	sweepCmd.Flags().Float64Var(&sweepMaxMemory, "max-memory", 0, "Highest memory budget in GB (default 3x --memory)")
	sweepCmd.Flags().BoolVar(&sweepChart, "chart", false, "Draw an ASCII chart of hit rate against memory")
	sweepCmd.Flags().IntVar(&chartHeight, "chart-height", report.DefaultChartHeight, "Chart height in rows")
	sweepCmd.Flags().IntVar(&chartWidth, "chart-width", report.DefaultChartWidth, "Chart width in columns")
}
