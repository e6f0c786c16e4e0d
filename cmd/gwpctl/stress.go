package main

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/gwpkit/gwp"
)

var (
	stressWorkers    int
	stressIterations int
	stressSize       uint64
	stressHold       int
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Run a concurrent allocate/free workload through the detector",
	Long: `The stress command runs workers that allocate, fill, verify and free
blocks through the detector, then reports how many requests were guarded
against the configured sample rate. Any corruption or unexpected violation
fails the run.

Example:
  gwpctl stress
  gwpctl stress --workers 16 --iterations 100000 --sample-rate 10
  gwpctl stress --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runStress(cfg, stressOptions{
			Workers:    stressWorkers,
			Iterations: stressIterations,
			Size:       uintptr(stressSize),
			Hold:       stressHold,
		})
	},
}

func init() {
	stressCmd.Flags().IntVarP(&stressWorkers, "workers", "w", 8, "Number of concurrent workers")
	stressCmd.Flags().IntVarP(&stressIterations, "iterations", "n", 10000, "Allocations per worker")
	stressCmd.Flags().Uint64Var(&stressSize, "size", 64, "Bytes per allocation")
	stressCmd.Flags().IntVar(&stressHold, "hold", 4, "Live allocations each worker keeps before freeing the oldest")
	rootCmd.AddCommand(stressCmd)
}

type stressOptions struct {
	Workers    int
	Iterations int
	Size       uintptr
	Hold       int
}

// stressResult is the JSON output of the stress command.
type stressResult struct {
	Workers          int       `json:"workers"`
	Iterations       int       `json:"iterations"`
	Elapsed          string    `json:"elapsed"`
	ExpectedFraction float64   `json:"expected_fraction"`
	ObservedFraction float64   `json:"observed_fraction"`
	Stats            gwp.Stats `json:"stats"`
}

func runStress(cfg gwp.Config, opts stressOptions) error {
	if opts.Workers <= 0 || opts.Iterations <= 0 || opts.Size == 0 {
		return fmt.Errorf("workers, iterations and size must be positive")
	}
	if opts.Hold < 1 {
		opts.Hold = 1
	}

	var mu sync.Mutex
	var violations []error
	d, err := gwp.New(cfg, &gwp.Options{
		OnViolation: func(v *gwp.ViolationError) {
			mu.Lock()
			violations = append(violations, v)
			mu.Unlock()
		},
	})
	if err != nil {
		return err
	}
	defer d.Close()
	if !d.Enabled() {
		printInfo("warning: %v; every request goes to the fallback allocator\n", errUnavailable)
	}

	printVerbose("Running %d workers x %d iterations of %s\n",
		opts.Workers, opts.Iterations, formatBytes(uint64(opts.Size)))

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, opts.Workers)
	for w := range opts.Workers {
		wg.Add(1)
		go func(tag byte) {
			defer wg.Done()
			if err := stressWorker(d, tag, opts); err != nil {
				errs <- err
			}
		}(byte(w + 1))
	}
	wg.Wait()
	close(errs)
	elapsed := time.Since(start)

	if err, ok := <-errs; ok {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d unexpected violations, first: %w", len(violations), violations[0])
	}

	st := d.Stats()
	total := uint64(opts.Workers * opts.Iterations)
	res := stressResult{
		Workers:          opts.Workers,
		Iterations:       opts.Iterations,
		Elapsed:          elapsed.Round(time.Millisecond).String(),
		ObservedFraction: float64(st.Guarded) / float64(total),
		Stats:            st,
	}
	if cfg.SampleRate > 0 {
		res.ExpectedFraction = 1 / float64(cfg.SampleRate)
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Requests:        %s in %s\n", formatCount(total), res.Elapsed)
	printInfo("Guarded:         %s (%.4f%%, expected %.4f%%)\n",
		formatCount(st.Guarded), res.ObservedFraction*100, res.ExpectedFraction*100)
	printInfo("Fallback:        %s\n", formatCount(st.Fallback))
	printInfo("Capacity misses: %s\n", formatCount(st.CapacityMisses))
	printInfo("Evictions:       %s\n", formatCount(st.Evictions))
	printInfo("Slots:           %d free, %d allocated, %d quarantined\n",
		st.FreeSlots, st.AllocatedSlots, st.QuarantinedSlots)
	return nil
}

// stressWorker keeps a small ring of live blocks, each filled with the
// worker's tag, and checks the tag before freeing.
func stressWorker(d *gwp.Detector, tag byte, opts stressOptions) error {
	ring := make([]unsafe.Pointer, 0, opts.Hold)
	check := func(p unsafe.Pointer) error {
		for i, b := range unsafe.Slice((*byte)(p), opts.Size) {
			if b != tag {
				return fmt.Errorf("worker %d: block %p corrupted at byte %d", tag, p, i)
			}
		}
		d.Deallocate(p)
		return nil
	}

	for range opts.Iterations {
		p := d.Allocate(opts.Size, 8)
		b := unsafe.Slice((*byte)(p), opts.Size)
		for i := range b {
			b[i] = tag
		}
		if len(ring) == opts.Hold {
			if err := check(ring[0]); err != nil {
				return err
			}
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, p)
	}
	for _, p := range ring {
		if err := check(p); err != nil {
			return err
		}
	}
	return nil
}
