package cmd

import (
	"github.com/spf13/cobra"

	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

// presetsCmd lists the model presets
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the available model presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		d, err := loadDefaults()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if format != report.FormatTable {
			return report.Write(w, format, d.Presets)
		}
		return report.PresetTable(w, d)
	},
}

func init() {
	presetsCmd.Flags().StringVar(&defaultsFilePath, "defaults", "", "Path to a defaults.yaml replacing the built-in presets")
	presetsCmd.Flags().StringVarP(&outputFormat, "output", "o", string(report.FormatTable), "Output format (table, json, yaml)")
}
