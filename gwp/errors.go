package gwp

import (
	"errors"
	"fmt"

	"github.com/joshuapare/gwpkit/pkg/types"
)

var (
	// ErrConfig indicates an invalid Config.
	ErrConfig = errors.New("gwp: invalid configuration")

	// ErrDoubleFree indicates a free of a guarded slot that is not allocated.
	ErrDoubleFree = errors.New("gwp: double free")

	// ErrInvalidFree indicates a free of an address inside the guarded region
	// that is not the start of a live allocation.
	ErrInvalidFree = errors.New("gwp: invalid free")

	// ErrClosed indicates the detector has been closed.
	ErrClosed = errors.New("gwp: detector closed")
)

// ViolationError reports a memory-safety violation detected synchronously,
// i.e. a bad free. Faults are reported by Diagnose instead.
type ViolationError struct {
	Report types.Report
	Err    error
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Report.Describe())
}

func (e *ViolationError) Unwrap() error { return e.Err }
