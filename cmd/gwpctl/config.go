package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/gwpkit/gwp"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective detector configuration",
	Long: `The config command prints the configuration gwpctl would build a detector
with: defaults, overlaid by --config, overlaid by flags.

Example:
  gwpctl config
  gwpctl config --config gwp.json --slots 128
  gwpctl config --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printConfig(cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func printConfig(cfg gwp.Config) error {
	if jsonOut {
		return printJSON(cfg)
	}
	maxAlloc := "one page"
	if cfg.MaxAllocSize != 0 {
		maxAlloc = formatBytes(uint64(cfg.MaxAllocSize))
	}
	if cfg.SampleRate == 0 {
		printInfo("sample_rate:       disabled\n")
	} else {
		printInfo("sample_rate:       1 in %d\n", cfg.SampleRate)
	}
	printInfo("slot_count:        %d\n", cfg.SlotCount)
	printInfo("max_alloc_size:    %s\n", maxAlloc)
	printInfo("underflow_percent: %d%%\n", cfg.UnderflowPercent)
	if cfg.PageSize != 0 {
		printInfo("page_size:         %d\n", cfg.PageSize)
	}
	if cfg.Seed != 0 {
		printInfo("seed:              %d\n", cfg.Seed)
	}
	return nil
}
