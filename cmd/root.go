package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fwdtrain/fwdtrain/train/trace"
)

var (
	logLevel string // Log verbosity level

	// CLI flags for `run`
	configPath    string  // YAML training config
	telemetryPath string  // YAML telemetry script; empty uses the static reading below
	ledgerPath    string  // SQLite upload ledger; empty disables uploads
	metricsPath   string  // Prometheus textfile written after the run
	spansPath     string  // JSON file receiving step spans
	traceLevel    string  // Training trace verbosity
	numSteps      int     // Candidate steps to attempt
	numParams     int     // Parameters in the synthetic model
	inputTokens   int     // Length of the synthetic input encoding
	modelSeed     uint64  // Seed for the synthetic model's target
	learningRate  float32 // Step size applied to each update
	staticTempC   float32 // Temperature when no telemetry script is given
	staticBattery float32 // Battery percent when no telemetry script is given
	staticCharge  bool    // Charging flag when no telemetry script is given
	startTime     uint64  // Clock of the first static reading (Unix seconds)
	tickSeconds   uint64  // Clock advance between static readings
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fwdtrain",
	Short: "On-device forward-gradient training client",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd runs training steps against the synthetic model using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run candidate training steps against the synthetic model",
	Run: func(cmd *cobra.Command, args []string) {
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		opts := runOptions{
			ConfigPath:    configPath,
			TelemetryPath: telemetryPath,
			LedgerPath:    ledgerPath,
			MetricsPath:   metricsPath,
			SpansPath:     spansPath,
			TraceLevel:    trace.TraceLevel(traceLevel),
			Steps:         numSteps,
			Params:        numParams,
			InputTokens:   inputTokens,
			ModelSeed:     modelSeed,
			LearningRate:  learningRate,
			Interval:      tickSeconds,
		}
		opts.Static.TempC = staticTempC
		opts.Static.BatteryPercent = staticBattery
		opts.Static.Charging = staticCharge
		opts.Static.Now = startTime

		logrus.Infof("Starting training run: steps=%d, params=%d, config=%q, telemetry=%q",
			numSteps, numParams, configPath, telemetryPath)

		summary, err := runTraining(context.Background(), opts)
		if err != nil {
			logrus.Fatalf("Training run failed: %v", err)
		}
		if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
			logrus.Fatalf("Writing summary: %v", err)
		}
		logrus.Info("Training run complete.")
	},
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "Path to training config YAML (defaults apply when empty)")
	runCmd.Flags().StringVar(&telemetryPath, "telemetry", "", "Path to telemetry script YAML (static reading when empty)")
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to SQLite upload ledger (uploads disabled when empty)")
	runCmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	runCmd.Flags().StringVar(&spansPath, "spans-file", "", "Write OpenTelemetry step spans to this JSON file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "steps", "Trace verbosity (none, steps, decisions)")
	runCmd.Flags().IntVar(&numSteps, "steps", 100, "Number of candidate steps")

	// Synthetic model
	runCmd.Flags().IntVar(&numParams, "params", 64, "Number of model parameters")
	runCmd.Flags().IntVar(&inputTokens, "input-tokens", 0, "Length of the synthetic input encoding")
	runCmd.Flags().Uint64Var(&modelSeed, "model-seed", 7, "Seed for the model's target weights")
	runCmd.Flags().Float32Var(&learningRate, "lr", 0.05, "Learning rate applied to each update")

	// Static telemetry
	runCmd.Flags().Float32Var(&staticTempC, "temp-c", 30, "Device temperature in Celsius")
	runCmd.Flags().Float32Var(&staticBattery, "battery", 100, "Battery percent")
	runCmd.Flags().BoolVar(&staticCharge, "charging", false, "Whether the device is charging")
	runCmd.Flags().Uint64Var(&startTime, "start-time", 1_700_000_000, "Clock of the first reading (Unix seconds)")
	runCmd.Flags().Uint64Var(&tickSeconds, "tick", 60, "Seconds between readings (0 freezes the clock)")

	rootCmd.AddCommand(runCmd)
}
