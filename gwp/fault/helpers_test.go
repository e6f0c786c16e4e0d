package fault

import "runtime/debug"

// debugPanicOnFault reads the current goroutine's setting without changing it.
func debugPanicOnFault() bool {
	old := debug.SetPanicOnFault(false)
	debug.SetPanicOnFault(old)
	return old
}

// sink keeps faulting loads from being optimised away.
var sink byte
