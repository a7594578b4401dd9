package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inference-sim/kvcache-calc/kvcache"
	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

var targetHitRate float64 // Desired hit rate in (0, 1]

// optimizeCmd recommends a memory budget for a target hit rate
var optimizeCmd = &cobra.Command{
	Use:     "optimize",
	Short:   "Recommend the memory needed to reach a target hit rate",
	Example: `  kvcache-calc optimize --preset mistral-24b --memory 80 --target-hit-rate 0.6`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		in, est, err := resolveInputs(cmd)
		if err != nil {
			return err
		}
		alloc, err := est.OptimizeMemoryAllocation(in.Model, in.System, in.Conversation, targetHitRate)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format != report.FormatTable {
			return report.Write(w, format, alloc)
		}
		report.AllocationTable(w, alloc)
		if ceiling := kvcache.MaxHitRate(in.Conversation); targetHitRate > ceiling {
			fmt.Fprintf(w, "Note: with %.2f turns per conversation the hit rate cannot exceed %s at any memory size.\n",
				in.Conversation.AvgConversationLength, report.Percent(ceiling))
		}
		return nil
	},
}

func init() {
	registerInputFlags(optimizeCmd.Flags())
	optimizeCmd.Flags().Float64Var(&targetHitRate, "target-hit-rate", kvcache.DefaultTargetHitRate, "Target cache hit rate in (0, 1]")
}
