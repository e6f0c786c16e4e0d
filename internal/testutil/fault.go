package testutil

import (
	"runtime/debug"
	"unsafe"
)

// Store writes b at p and reports whether the write faulted.
func Store(p unsafe.Pointer, b byte) (faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			faulted = true
		}
	}()
	*(*byte)(p) = b
	return false
}

// Load reads the byte at p and reports whether the read faulted.
func Load(p unsafe.Pointer) (b byte, faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			faulted = true
		}
	}()
	return *(*byte)(p), false
}
