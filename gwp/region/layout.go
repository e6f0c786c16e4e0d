// Package region owns the single reserved address range that backs every
// guarded slot.
//
// The range is laid out as alternating guard pages and slot data:
//
//	[guard][slot 0 data][guard][slot 1 data] ... [slot N-1 data][guard]
//
// Every slot is SlotPages pages long, so every slot is bounded on both sides
// by a guard page, and a guard page between two slots is the trailing guard
// of one and the leading guard of the other.
package region

// Kind says what part of the region an address falls into.
type Kind uint8

const (
	KindOutside Kind = iota
	KindData
	KindGuard
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindGuard:
		return "guard"
	default:
		return "outside"
	}
}

// Location is the result of Layout.Locate.
type Location struct {
	Kind Kind

	// Slot is the slot whose data page holds the address (KindData only).
	Slot int

	// Before and After are the slots on either side of a guard page
	// (KindGuard only); -1 at the ends of the region.
	Before int
	After  int
}

// Layout is the address arithmetic of a region. It touches no memory, so it
// is safe to use from a fault handler.
type Layout struct {
	Base      uintptr
	PageSize  uintptr
	SlotPages uintptr
	Slots     int
}

func (l Layout) stride() uintptr {
	return (l.SlotPages + 1) * l.PageSize
}

// Size is the total number of bytes reserved, guards included.
func (l Layout) Size() uintptr {
	return uintptr(l.Slots)*l.stride() + l.PageSize
}

// End is one past the last byte of the region.
func (l Layout) End() uintptr {
	return l.Base + l.Size()
}

// SlotCapacity is the number of data bytes in one slot.
func (l Layout) SlotCapacity() uintptr {
	return l.SlotPages * l.PageSize
}

// SlotStart is the address of the first data byte of slot i.
func (l Layout) SlotStart(i int) uintptr {
	return l.Base + l.PageSize + uintptr(i)*l.stride()
}

// SlotEnd is one past the last data byte of slot i.
func (l Layout) SlotEnd(i int) uintptr {
	return l.SlotStart(i) + l.SlotCapacity()
}

// Contains reports whether addr lies anywhere in the region.
func (l Layout) Contains(addr uintptr) bool {
	return l.Slots > 0 && addr >= l.Base && addr < l.End()
}

// Locate classifies addr as slot data, guard page, or outside the region.
func (l Layout) Locate(addr uintptr) Location {
	if !l.Contains(addr) {
		return Location{Kind: KindOutside, Slot: -1, Before: -1, After: -1}
	}
	off := addr - l.Base
	k := int(off / l.stride())
	if off%l.stride() >= l.PageSize {
		return Location{Kind: KindData, Slot: k, Before: -1, After: -1}
	}
	loc := Location{Kind: KindGuard, Slot: -1, Before: k - 1, After: k}
	if k >= l.Slots {
		loc.After = -1
	}
	return loc
}
