// Package diagnose classifies a faulting address against the guarded
// region.
//
// Diagnose is written for fault-handler context: it takes no locks, does not
// allocate and tolerates metadata that another thread is rewriting. Its
// answer is best-effort; Report.Consistent says whether the slot record was
// read cleanly.
//
// Rules, first match wins:
//
//  1. the address of a recorded bad free: double-free or invalid-free
//  2. a guard page next to an Allocated slot: buffer-overflow when attributed
//     to the slot before the guard, buffer-underflow for the slot after it
//  3. a data page of a Quarantined slot: use-after-free
//  4. a data page of an Allocated slot outside the allocation: padding
//     overflow/underflow inside the accessible pages, buffer overflow/
//     underflow in the slot's closed pages
//  5. anywhere else in the region: unknown
//
// Addresses outside the region are not ours and yield no report.
package diagnose

import (
	"github.com/joshuapare/gwpkit/gwp/metadata"
	"github.com/joshuapare/gwpkit/gwp/region"
	"github.com/joshuapare/gwpkit/pkg/types"
)

// Source is the detector state Diagnose reads. Implementations must not
// block or allocate.
type Source interface {
	Layout() region.Layout
	SlotState(slot int) types.SlotState
	Lookup(slot int) (metadata.Record, bool)

	// BadFree returns the last address passed to a free that was rejected,
	// and why.
	BadFree() (addr uintptr, kind types.ErrorType, ok bool)
}

// Diagnose classifies addr. It returns false when addr is outside the
// guarded region.
func Diagnose(addr uintptr, src Source) (types.Report, bool) {
	r := types.Report{FaultAddr: addr, Slot: -1, Consistent: true}
	l := src.Layout()
	loc := l.Locate(addr)

	if bad, kind, ok := src.BadFree(); ok && bad == addr && loc.Kind != region.KindOutside {
		if loc.Kind == region.KindData {
			fill(&r, loc.Slot, src)
		}
		r.Type = kind
		return r, true
	}

	switch loc.Kind {
	case region.KindOutside:
		return r, false

	case region.KindGuard:
		slot, typ := attributeGuard(addr, loc, src)
		if slot >= 0 {
			fill(&r, slot, src)
		}
		r.Type = typ
		return r, true

	default:
		rec := fill(&r, loc.Slot, src)
		switch r.SlotState {
		case types.SlotQuarantined:
			r.Type = types.ErrUseAfterFree
		case types.SlotAllocated:
			r.Type = classifyData(addr, rec, l, loc.Slot)
		default:
			r.Type = types.ErrUnknown
		}
		return r, true
	}
}

// fill copies slot metadata into r and returns the record it read.
func fill(r *types.Report, slot int, src Source) metadata.Record {
	rec, ok := src.Lookup(slot)
	r.Slot = slot
	r.SlotState = src.SlotState(slot)
	r.AllocAddr = rec.Addr
	r.RequestedSize = rec.RequestedSize
	r.AllocatedSize = rec.AllocatedSize
	r.Placement = rec.Placement
	r.Offset = int64(r.FaultAddr) - int64(rec.Addr)
	r.Alloc = rec.Alloc
	r.Dealloc = rec.Dealloc
	r.Deallocated = rec.Deallocated
	r.Consistent = ok
	return rec
}

// accessible returns the open pages of an allocated slot.
func accessible(rec metadata.Record, l region.Layout, slot int) (start, end uintptr) {
	if rec.Placement == types.PlacementRight {
		return l.SlotEnd(slot) - rec.AllocatedSize, l.SlotEnd(slot)
	}
	return l.SlotStart(slot), l.SlotStart(slot) + rec.AllocatedSize
}

func classifyData(addr uintptr, rec metadata.Record, l region.Layout, slot int) types.ErrorType {
	start, end := accessible(rec, l, slot)
	open := addr >= start && addr < end
	switch {
	case addr >= rec.Addr+rec.RequestedSize:
		if open {
			return types.ErrPaddingOverflow
		}
		return types.ErrBufferOverflow
	case addr < rec.Addr:
		if open {
			return types.ErrPaddingUnderflow
		}
		return types.ErrBufferUnderflow
	default:
		return types.ErrUnknown
	}
}

// attributeGuard decides which neighbour of a guard page a fault belongs to.
// Only Allocated neighbours qualify. When both do, the one whose allocation
// is pushed against this guard wins; otherwise the nearer allocation does.
// With no Allocated neighbour the fault is unknown but still attributed to
// the nearest slot that has metadata, if any.
func attributeGuard(addr uintptr, loc region.Location, src Source) (int, types.ErrorType) {
	before, after := loc.Before, loc.After
	beforeLive := before >= 0 && src.SlotState(before) == types.SlotAllocated
	afterLive := after >= 0 && src.SlotState(after) == types.SlotAllocated

	switch {
	case beforeLive && !afterLive:
		return before, types.ErrBufferOverflow
	case afterLive && !beforeLive:
		return after, types.ErrBufferUnderflow
	case beforeLive && afterLive:
		b, _ := src.Lookup(before)
		a, _ := src.Lookup(after)
		bAbuts := b.Placement == types.PlacementRight
		aAbuts := a.Placement == types.PlacementLeft
		if bAbuts != aAbuts {
			if bAbuts {
				return before, types.ErrBufferOverflow
			}
			return after, types.ErrBufferUnderflow
		}
		if addr-(b.Addr+b.RequestedSize) <= a.Addr-addr {
			return before, types.ErrBufferOverflow
		}
		return after, types.ErrBufferUnderflow
	}

	// Neither neighbour is live: attribute to whichever has been used.
	if before >= 0 && src.SlotState(before) != types.SlotFree {
		return before, types.ErrUnknown
	}
	if after >= 0 && src.SlotState(after) != types.SlotFree {
		return after, types.ErrUnknown
	}
	return -1, types.ErrUnknown
}
