// Package vmem abstracts the page-mapping primitives the guarded allocator
// needs: reserving an inaccessible address range, toggling page protection
// and returning the range to the system.
//
// Each platform provides one Mapper implementation selected at build time:
//
//   - unix (linux, darwin, BSDs): anonymous private mappings via golang.org/x/sys/unix
//   - windows: VirtualAlloc/VirtualFree via golang.org/x/sys/windows
//   - everything else: every call fails with ErrUnsupported
//
// A Mapper never commits memory on Reserve. MarkInaccessible drops the
// physical frames backing the range so quarantined pages do not count
// against the resident set.
package vmem

import (
	"errors"
	"unsafe"
)

var (
	// ErrUnsupported indicates the platform has no page-mapping backend.
	ErrUnsupported = errors.New("vmem: page mapping not supported on this platform")

	// ErrReserve indicates the address range could not be reserved.
	ErrReserve = errors.New("vmem: reserve failed")

	// ErrProtect indicates a protection change failed.
	ErrProtect = errors.New("vmem: protection change failed")

	// ErrRelease indicates the address range could not be returned to the system.
	ErrRelease = errors.New("vmem: release failed")
)

// Mapper is the capability set a platform backend provides.
// Addresses and sizes passed to it must be page aligned.
type Mapper interface {
	// PageSize returns the platform page size in bytes.
	PageSize() uintptr

	// Reserve maps size bytes of inaccessible address space.
	Reserve(size uintptr) (unsafe.Pointer, error)

	// Release unmaps a range previously returned by Reserve.
	Release(base unsafe.Pointer, size uintptr) error

	// MarkAccessible makes the range readable and writable.
	MarkAccessible(addr unsafe.Pointer, size uintptr) error

	// MarkInaccessible makes the range inaccessible and releases its frames.
	MarkInaccessible(addr unsafe.Pointer, size uintptr) error
}
