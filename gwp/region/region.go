package region

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/gwpkit/internal/vmem"
)

var (
	// ErrBadGeometry indicates a slot count or slot size the region cannot hold.
	ErrBadGeometry = errors.New("region: invalid slot geometry")

	// ErrReleased indicates the region was already returned to the system.
	ErrReleased = errors.New("region: already released")
)

// Region is a reserved range of guarded slots. Nothing in it is accessible
// until the guard controller opens a slot.
type Region struct {
	mapper   vmem.Mapper
	base     unsafe.Pointer
	layout   Layout
	released atomic.Bool
}

// Reserve maps an inaccessible range able to hold slots slots of slotPages
// pages each, plus one guard page per slot and one trailing guard.
func Reserve(m vmem.Mapper, slots int, slotPages uintptr) (*Region, error) {
	if slots <= 0 || slotPages == 0 {
		return nil, fmt.Errorf("%w: %d slots of %d pages", ErrBadGeometry, slots, slotPages)
	}
	ps := m.PageSize()
	stride := (slotPages + 1) * ps
	if stride/ps != slotPages+1 || uintptr(slots) > (math.MaxUint-ps)/stride {
		return nil, fmt.Errorf("%w: %d slots of %d pages overflows the address space", ErrBadGeometry, slots, slotPages)
	}

	l := Layout{PageSize: ps, SlotPages: slotPages, Slots: slots}
	base, err := m.Reserve(l.Size())
	if err != nil {
		return nil, fmt.Errorf("region: reserve %d bytes: %w", l.Size(), err)
	}
	l.Base = uintptr(base)
	return &Region{mapper: m, base: base, layout: l}, nil
}

// Layout returns the region's address arithmetic.
func (r *Region) Layout() Layout {
	return r.layout
}

// Mapper returns the backend the region was reserved with.
func (r *Region) Mapper() vmem.Mapper {
	return r.mapper
}

// Pointer converts an address inside the region into a pointer.
func (r *Region) Pointer(addr uintptr) unsafe.Pointer {
	return unsafe.Add(r.base, addr-r.layout.Base)
}

// SlotData returns a pointer to the first data byte of slot i.
func (r *Region) SlotData(i int) unsafe.Pointer {
	return r.Pointer(r.layout.SlotStart(i))
}

// Released reports whether Release has been called.
func (r *Region) Released() bool {
	return r.released.Load()
}

// Release unmaps the whole region. Only the first call does anything; later
// calls return ErrReleased.
func (r *Region) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if err := r.mapper.Release(r.base, r.layout.Size()); err != nil {
		return fmt.Errorf("region: release: %w", err)
	}
	return nil
}
