//go:build windows

package vmem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsMapper struct {
	pageSize uintptr
}

// New returns the mapper for the running platform.
func New() Mapper {
	return windowsMapper{pageSize: uintptr(os.Getpagesize())}
}

func (m windowsMapper) PageSize() uintptr { return m.pageSize }

func (m windowsMapper) Reserve(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-length range", ErrReserve)
	}
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, fmt.Errorf("%w: VirtualAlloc %d bytes: %w", ErrReserve, size, err)
	}
	return unsafe.Pointer(addr), nil
}

func (m windowsMapper) Release(base unsafe.Pointer, _ uintptr) error {
	if base == nil {
		return nil
	}
	if err := windows.VirtualFree(uintptr(base), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("%w: VirtualFree: %w", ErrRelease, err)
	}
	return nil
}

func (m windowsMapper) MarkAccessible(addr unsafe.Pointer, size uintptr) error {
	if _, err := windows.VirtualAlloc(uintptr(addr), size, windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return fmt.Errorf("%w: commit %p+%d: %w", ErrProtect, addr, size, err)
	}
	return nil
}

// MarkInaccessible decommits the range, which both revokes access and hands
// the frames back to the system.
func (m windowsMapper) MarkInaccessible(addr unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualFree(uintptr(addr), size, windows.MEM_DECOMMIT); err != nil {
		return fmt.Errorf("%w: decommit %p+%d: %w", ErrProtect, addr, size, err)
	}
	return nil
}
