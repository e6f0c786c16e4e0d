package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/gwpkit/gwp"
	"github.com/joshuapare/gwpkit/internal/logger"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
	logLevel   string
	logDir     string

	// Config overrides
	sampleRate       uint64
	slotCount        int
	maxAllocSize     uint64
	underflowPercent int
	seed             uint64
)

var rootCmd = &cobra.Command{
	Use:   "gwpctl",
	Short: "Exercise and inspect the guarded-page heap-corruption detector",
	Long: `gwpctl drives a gwp detector in-process. It can provoke each class of
memory-safety violation against guarded allocations and print the resulting
diagnosis, run a concurrent allocation workload, and show the effective
configuration.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and info-level logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	pf.BoolVar(&jsonOut, "json", false, "Output in JSON format")
	pf.StringVarP(&configPath, "config", "c", "", "JSON config file (defaults apply to missing fields)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (enables logging)")
	pf.StringVar(&logDir, "log-dir", "", "Write logs to a daily file in this directory instead of stderr")

	pf.Uint64Var(&sampleRate, "sample-rate", 0, "Guard one allocation in N (0 disables sampling)")
	pf.IntVar(&slotCount, "slots", 0, "Number of guarded slots")
	pf.Uint64Var(&maxAllocSize, "max-alloc", 0, "Largest guardable allocation in bytes (0 = one page)")
	pf.IntVar(&underflowPercent, "underflow-percent", 0, "Share of allocations placed against the leading guard")
	pf.Uint64Var(&seed, "seed", 0, "Slot selection seed (0 = random)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging initialises the shared logger from the global flags.
func setupLogging(cmd *cobra.Command, args []string) error {
	enabled := verbose || logLevel != "" || logDir != ""
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if logLevel == "" && !verbose {
		level, _ = logger.ParseLevel("warn")
	}
	return logger.Init(logger.Options{
		Enabled: enabled,
		LogDir:  logDir,
		Level:   level,
		JSON:    logDir != "",
	})
}

// loadConfig returns the config file (or defaults) with any flag overrides
// applied.
func loadConfig(cmd *cobra.Command) (gwp.Config, error) {
	cfg := gwp.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = gwp.LoadConfig(configPath); err != nil {
			return gwp.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("sample-rate") {
		cfg.SampleRate = sampleRate
	}
	if flags.Changed("slots") {
		cfg.SlotCount = slotCount
	}
	if flags.Changed("max-alloc") {
		cfg.MaxAllocSize = uintptr(maxAllocSize)
	}
	if flags.Changed("underflow-percent") {
		cfg.UnderflowPercent = underflowPercent
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return gwp.Config{}, err
	}
	return cfg, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
