//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package vmem

import (
	"os"
	"unsafe"
)

type unsupportedMapper struct{}

// New returns a mapper that refuses every request. Detectors built on it
// disable themselves at construction.
func New() Mapper {
	return unsupportedMapper{}
}

func (unsupportedMapper) PageSize() uintptr { return uintptr(os.Getpagesize()) }

func (unsupportedMapper) Reserve(uintptr) (unsafe.Pointer, error) { return nil, ErrUnsupported }

func (unsupportedMapper) Release(unsafe.Pointer, uintptr) error { return ErrUnsupported }

func (unsupportedMapper) MarkAccessible(unsafe.Pointer, uintptr) error { return ErrUnsupported }

func (unsupportedMapper) MarkInaccessible(unsafe.Pointer, uintptr) error { return ErrUnsupported }
