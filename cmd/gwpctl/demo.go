package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/gwpkit/gwp"
	"github.com/joshuapare/gwpkit/gwp/fault"
	"github.com/joshuapare/gwpkit/pkg/types"
)

var demoDump bool

// errUnavailable is returned when the platform cannot reserve a guarded
// region, so no violation can be demonstrated.
var errUnavailable = errors.New("guarded region unavailable on this platform")

var demoCmd = &cobra.Command{
	Use:   "demo [scenario...]",
	Short: "Provoke memory-safety violations against guarded allocations",
	Long: `The demo command builds a detector with every allocation sampled, provokes
one violation per scenario and prints the diagnosis the detector produces.

Scenarios:
  overflow      write one byte past a page-sized allocation
  underflow     write one byte before a 16-byte allocation
  uaf           read a freed allocation
  double-free   free the same allocation twice
  invalid-free  free a pointer into the middle of an allocation
  exhaust       allocate until every slot is live and watch the fallback take over
  all           every scenario above (default)`,
	Example: `  gwpctl demo
  gwpctl demo overflow uaf
  gwpctl demo --json double-free
  gwpctl demo --dump exhaust`,
	ValidArgs: append(scenarioNames(), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runDemo(cfg, args)
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoDump, "dump", false, "Print the slot table after each scenario")
	rootCmd.AddCommand(demoCmd)
}

// demoEnv is one detector plus the last violation it reported.
type demoEnv struct {
	d    *gwp.Detector
	last *gwp.ViolationError
}

type scenario struct {
	desc string
	run  func(env *demoEnv) (*types.Report, string, error)
}

var scenarios = map[string]scenario{
	"overflow": {
		desc: "write one byte past a page-sized allocation",
		run: func(env *demoEnv) (*types.Report, string, error) {
			size := env.d.Layout().PageSize
			p := env.d.GuardedAllocate(size, 16, types.PlacementRight)
			if p == nil {
				return nil, "", errors.New("guarded allocation failed")
			}
			return expectFault(env.d, func() { *(*byte)(unsafe.Add(p, size)) = 1 })
		},
	},
	"underflow": {
		desc: "write one byte before a 16-byte allocation",
		run: func(env *demoEnv) (*types.Report, string, error) {
			p := env.d.GuardedAllocate(16, 16, types.PlacementLeft)
			if p == nil {
				return nil, "", errors.New("guarded allocation failed")
			}
			return expectFault(env.d, func() { *(*byte)(unsafe.Add(p, -1)) = 1 })
		},
	},
	"uaf": {
		desc: "read a freed allocation",
		run: func(env *demoEnv) (*types.Report, string, error) {
			p := env.d.GuardedAllocate(64, 8, types.PlacementRandom)
			if p == nil {
				return nil, "", errors.New("guarded allocation failed")
			}
			env.d.Deallocate(p)
			return expectFault(env.d, func() { demoSink = *(*byte)(p) })
		},
	},
	"double-free": {
		desc: "free the same allocation twice",
		run: func(env *demoEnv) (*types.Report, string, error) {
			p := env.d.GuardedAllocate(32, 8, types.PlacementRandom)
			if p == nil {
				return nil, "", errors.New("guarded allocation failed")
			}
			env.d.Deallocate(p)
			env.d.Deallocate(p)
			return expectViolation(env, gwp.ErrDoubleFree)
		},
	},
	"invalid-free": {
		desc: "free a pointer into the middle of an allocation",
		run: func(env *demoEnv) (*types.Report, string, error) {
			p := env.d.GuardedAllocate(32, 8, types.PlacementLeft)
			if p == nil {
				return nil, "", errors.New("guarded allocation failed")
			}
			env.d.Deallocate(unsafe.Add(p, 8))
			defer env.d.Deallocate(p)
			return expectViolation(env, gwp.ErrInvalidFree)
		},
	},
	"exhaust": {
		desc: "allocate until every slot is live",
		run: func(env *demoEnv) (*types.Report, string, error) {
			n := env.d.Config().SlotCount
			var guarded, fellBack int
			for range n + 1 {
				p := env.d.Allocate(64, 8)
				if env.d.Owns(p) {
					guarded++
				} else {
					fellBack++
				}
			}
			if fellBack == 0 {
				return nil, "", errors.New("expected the fallback allocator to serve the last request")
			}
			return nil, fmt.Sprintf("%d allocations guarded, %d served by the fallback allocator", guarded, fellBack), nil
		},
	},
}

// demoSink keeps faulting loads from being optimised away.
var demoSink byte

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func expectFault(d *gwp.Detector, fn func()) (*types.Report, string, error) {
	res := fault.Run(d, fn)
	switch {
	case !res.Faulted:
		return nil, "", errors.New("access did not fault")
	case !res.Ours:
		return nil, "", fmt.Errorf("fault outside the guarded region: %w", res.Err())
	}
	return &res.Report, "", nil
}

func expectViolation(env *demoEnv, want error) (*types.Report, string, error) {
	if env.last == nil {
		return nil, "", fmt.Errorf("no violation reported, expected %v", want)
	}
	if !errors.Is(env.last, want) {
		return nil, "", fmt.Errorf("got %v, expected %v", env.last.Err, want)
	}
	return &env.last.Report, "", nil
}

// demoResult is one scenario's outcome in JSON output.
type demoResult struct {
	Scenario string         `json:"scenario"`
	Summary  string         `json:"summary,omitempty"`
	Report   *types.Report  `json:"report,omitempty"`
	Stats    gwp.Stats      `json:"stats"`
	Slots    []gwp.SlotInfo `json:"slots,omitempty"`
}

func resolveScenarios(args []string) ([]string, error) {
	if len(args) == 0 {
		return []string{"overflow", "underflow", "uaf", "double-free", "invalid-free", "exhaust"}, nil
	}
	var out []string
	for _, a := range args {
		if a == "all" {
			return resolveScenarios(nil)
		}
		if _, ok := scenarios[a]; !ok {
			return nil, fmt.Errorf("unknown scenario %q (want one of %s, all)", a, strings.Join(scenarioNames(), ", "))
		}
		out = append(out, a)
	}
	return out, nil
}

func runDemo(cfg gwp.Config, args []string) error {
	names, err := resolveScenarios(args)
	if err != nil {
		return err
	}

	cfg.SampleRate = 1
	if cfg.SlotCount < 2 {
		cfg.SlotCount = 2
	}

	var results []demoResult
	for _, name := range names {
		res, err := runScenario(cfg, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, res)

		if jsonOut {
			continue
		}
		printInfo("== %s: %s\n", name, scenarios[name].desc)
		if res.Report != nil {
			printInfo("%s", res.Report.FormatText())
		}
		if res.Summary != "" {
			printInfo("  %s\n", res.Summary)
		}
		printVerbose("  guarded %s, fallback %s, violations %s\n",
			formatCount(res.Stats.Guarded), formatCount(res.Stats.Fallback), formatCount(res.Stats.Violations))
		if demoDump {
			printSlots(res.Slots)
		}
		printInfo("\n")
	}

	if jsonOut {
		return printJSON(results)
	}
	return nil
}

func runScenario(cfg gwp.Config, name string) (demoResult, error) {
	env := &demoEnv{}
	d, err := gwp.New(cfg, &gwp.Options{
		OnViolation: func(v *gwp.ViolationError) { env.last = v },
	})
	if err != nil {
		return demoResult{}, err
	}
	defer d.Close()
	if !d.Enabled() {
		return demoResult{}, errUnavailable
	}
	env.d = d

	report, summary, err := scenarios[name].run(env)
	if err != nil {
		return demoResult{}, err
	}
	res := demoResult{Scenario: name, Summary: summary, Report: report, Stats: d.Stats()}
	if demoDump {
		res.Slots = d.Snapshot()
	}
	return res, nil
}

func printSlots(slots []gwp.SlotInfo) {
	printInfo("  %-5s %-12s %-18s %-10s %-6s %s\n", "SLOT", "STATE", "ADDR", "SIZE", "PLACE", "SEQ")
	for _, s := range slots {
		if s.State == types.SlotFree && s.AllocSeq == 0 {
			continue
		}
		seq := fmt.Sprintf("%d", s.AllocSeq)
		if s.FreeSeq != 0 {
			seq = fmt.Sprintf("%d/%d", s.AllocSeq, s.FreeSeq)
		}
		printInfo("  %-5d %-12s %#-18x %-10d %-6s %s\n", s.Slot, s.State, s.Addr, s.RequestedSize, s.Placement, seq)
	}
}
