// Package gwp is a sampling guarded-page heap-corruption detector.
//
// # Overview
//
// A Detector wraps a small, randomly sampled fraction of allocation requests
// in individually mapped slots bounded by inaccessible guard pages. An
// out-of-bounds access on a guarded allocation faults on the spot instead of
// corrupting a neighbour, and freed slots stay inaccessible in quarantine so
// use-after-free faults too. Every guarded slot keeps the allocation and
// deallocation stacks of its last occupant, which the diagnoser combines
// with the faulting address to say what went wrong.
//
// Requests that are not sampled, do not fit a slot, or arrive while every
// slot is live go to a fallback allocator. Callers cannot tell the two paths
// apart except by timing.
//
// # Usage
//
//	d, err := gwp.New(gwp.DefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	p := d.Allocate(64, 16)
//	// ... use p ...
//	d.Deallocate(p)
//
// A host's fault handler passes the faulting address to Diagnose:
//
//	res := fault.Run(d, func() { handle(request) })
//	if res.Ours {
//	    fmt.Print(res.Report.FormatText())
//	}
//
// # Components
//
//   - region: the reserved address range and its slot/guard arithmetic
//   - slots: Free/Allocated/Quarantined bookkeeping with random selection
//     and random quarantine eviction
//   - guard: protection changes and left/right placement
//   - metadata: fixed per-slot records readable from a fault handler
//   - sampling: the 1-in-K decision
//   - diagnose: fault classification
//   - fault: SetPanicOnFault-based stand-in for a signal handler
//   - fallback: a reference fallback allocator
//
// # Failure modes
//
// Failing to reserve the region disables the detector; every request then
// goes to the fallback allocator. A failed protection change panics after
// notifying Options.OnFatal. Double and invalid frees are reported through
// Options.OnViolation, which panics by default.
//
// # Thread Safety
//
// All Detector methods are safe for concurrent use. Close must only be
// called once nothing else uses the detector.
package gwp
