//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type unixMapper struct {
	pageSize uintptr
}

// New returns the mapper for the running platform.
func New() Mapper {
	return unixMapper{pageSize: uintptr(unix.Getpagesize())}
}

func (m unixMapper) PageSize() uintptr { return m.pageSize }

// Reserve maps the whole range PROT_NONE so nothing is committed until a
// slot is made accessible.
func (m unixMapper) Reserve(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-length range", ErrReserve)
	}
	p, err := unix.MmapPtr(-1, 0, nil, size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrReserve, size, err)
	}
	return p, nil
}

func (m unixMapper) Release(base unsafe.Pointer, size uintptr) error {
	if base == nil {
		return nil
	}
	if err := unix.MunmapPtr(base, size); err != nil {
		return fmt.Errorf("%w: munmap: %w", ErrRelease, err)
	}
	return nil
}

func (m unixMapper) MarkAccessible(addr unsafe.Pointer, size uintptr) error {
	if err := unix.Mprotect(unsafe.Slice((*byte)(addr), size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("%w: mprotect %p+%d: %w", ErrProtect, addr, size, err)
	}
	return nil
}

// MarkInaccessible maps a fresh PROT_NONE range over addr instead of calling
// mprotect, so the kernel drops the old frames and quarantined pages stop
// counting against RSS.
func (m unixMapper) MarkInaccessible(addr unsafe.Pointer, size uintptr) error {
	p, err := unix.MmapPtr(-1, 0, addr, size, unix.PROT_NONE, unix.MAP_FIXED|unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("%w: remap %p+%d: %w", ErrProtect, addr, size, err)
	}
	if p != addr {
		return fmt.Errorf("%w: remap %p landed at %p", ErrProtect, addr, p)
	}
	return nil
}
