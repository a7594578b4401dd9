package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "kvcache-calc",
	Short: "Analytical KV cache hit rate calculator for conversational LLM serving",
	Long: `kvcache-calc estimates the steady-state KV cache hit rate of an inference
server from the model architecture, the memory budget and a statistical model
of conversational traffic. Results are closed-form estimates, not measurements.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if err := loadDotEnvFromCacheFolder(); err != nil {
			logrus.Warnf("%v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(watchCmd)
}
