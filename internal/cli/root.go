package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "synheart-monitor",
	Short: "Synheart Monitor - multi-patient cardiac telemetry simulator",
	Long: `Synheart Monitor simulates a ward of patients on bedside monitors.

Each patient gets a live ECG, pleth and respiration waveform driven by a
selectable cardiac rhythm, vitals derived once a second, threshold and
rhythm alarms, and an asynchronous deterioration risk score. The ward is
controlled over an HTTP API and streamed over WebSocket and SSE.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOpts.EnvFile, "env-file", globalOpts.EnvFile, "Load settings from this .env file")
	flags.String("log-level", "", "Log level: debug|info|warn|error")
	flags.String("log-format", "", "Log format: text|json")
	flags.String("log-file", "", "Also write logs to this file (rotated)")
	flags.String("db", "", "SQLite database path")
	flags.BoolVarP(&globalOpts.Quiet, "quiet", "q", false, "Suppress console logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(rhythmsCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(orgCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
