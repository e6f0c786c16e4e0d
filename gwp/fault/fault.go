// Package fault turns hardware memory faults into values the diagnoser can
// work with.
//
// Go delivers SIGSEGV/SIGBUS on an unexpected address as a fatal error
// unless the goroutine has opted into runtime/debug.SetPanicOnFault, in
// which case the fault becomes a runtime.Error panic that carries the
// faulting address. Catch and Run use that to stand in for a process-wide
// signal handler: they run a function, recover the fault, and hand the
// address to a Diagnoser.
//
// Faults without an address (nil dereferences) and ordinary panics are
// re-raised untouched.
package fault

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/joshuapare/gwpkit/pkg/types"
)

// Fault is a recovered memory access fault.
type Fault struct {
	Addr uintptr
	Err  runtime.Error
}

// addresser is implemented by runtime errors raised for faults under
// SetPanicOnFault.
type addresser interface {
	Addr() uintptr
}

// Catch runs fn with panic-on-fault enabled for the calling goroutine and
// reports the first fault it raised.
func Catch(fn func()) (f Fault, faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rerr, ok := r.(runtime.Error)
		if !ok {
			panic(r)
		}
		a, ok := r.(addresser)
		if !ok {
			panic(r)
		}
		f = Fault{Addr: a.Addr(), Err: rerr}
		faulted = true
	}()

	fn()
	return Fault{}, false
}

// Diagnoser classifies a faulting address. *gwp.Detector implements it.
type Diagnoser interface {
	Diagnose(addr uintptr) (types.Report, bool)
}

// Result is the outcome of Run.
type Result struct {
	Fault   Fault
	Faulted bool

	// Report is valid when Ours is true.
	Report types.Report
	Ours   bool
}

// Err returns a *CrashError when fn faulted inside the guarded region, the
// raw runtime error for any other fault, and nil otherwise.
func (r *Result) Err() error {
	switch {
	case !r.Faulted:
		return nil
	case r.Ours:
		return &CrashError{Report: r.Report, Cause: r.Fault.Err}
	default:
		return r.Fault.Err
	}
}

// Run executes fn and, if it faults, diagnoses the faulting address with d.
func Run(d Diagnoser, fn func()) Result {
	var res Result
	res.Fault, res.Faulted = Catch(fn)
	if res.Faulted {
		res.Report, res.Ours = d.Diagnose(res.Fault.Addr)
	}
	return res
}

// CrashError carries the diagnosis of a fault in guarded memory.
type CrashError struct {
	Report types.Report
	Cause  error
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("gwp: %s", e.Report.Describe())
}

func (e *CrashError) Unwrap() error { return e.Cause }
