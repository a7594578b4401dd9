package cmd

import (
	"github.com/spf13/cobra"

	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

// calculateCmd evaluates the cache model once for the resolved inputs
var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Estimate the KV cache hit rate for one configuration",
	Example: `  kvcache-calc calculate --preset mistral-24b --memory 80 --arrival-rate 2
  kvcache-calc calculate --hf-model meta-llama/Llama-3.1-8B --memory 80 -o json
  kvcache-calc calculate --scenario scenario.yaml --kvcache-dtype fp8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		in, est, err := resolveInputs(cmd)
		if err != nil {
			return err
		}
		return runCalculation(cmd.OutOrStdout(), format, in, est)
	},
}

func init() {
	registerInputFlags(calculateCmd.Flags())
}
