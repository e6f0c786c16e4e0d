package gwp

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/gwpkit/gwp/diagnose"
	"github.com/joshuapare/gwpkit/gwp/guard"
	"github.com/joshuapare/gwpkit/gwp/metadata"
	"github.com/joshuapare/gwpkit/gwp/region"
	"github.com/joshuapare/gwpkit/gwp/sampling"
	"github.com/joshuapare/gwpkit/gwp/slots"
	"github.com/joshuapare/gwpkit/internal/align"
	"github.com/joshuapare/gwpkit/pkg/types"
)

// Detector is a guarded-page allocator front-end. The zero value is not
// usable; construct one with New.
type Detector struct {
	cfg         Config
	log         *slog.Logger
	fallback    Allocator
	onViolation func(*ViolationError)

	enabled bool
	closed  atomic.Bool

	region  *region.Region
	layout  region.Layout
	pool    *slots.Pool
	guard   *guard.Controller
	policy  guard.Policy
	meta    *metadata.Store
	sampler *sampling.Sampler

	// seq orders allocation and deallocation events across slots.
	seq atomic.Uint64

	// badFree is the last rejected free, published as one immutable value
	// so the diagnoser never sees an address from one violation with the
	// kind of another.
	badFree atomic.Pointer[badFree]

	guarded     atomic.Uint64
	fellBack    atomic.Uint64
	capMisses   atomic.Uint64
	unsupported atomic.Uint64
	frees       atomic.Uint64
	violations  atomic.Uint64
}

// New builds a detector. Invalid configuration is an error; failing to
// reserve the guarded region is not: the detector comes back disabled and
// routes everything to the fallback allocator.
func New(cfg Config, opts *Options) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := opts.withDefaults()

	d := &Detector{
		cfg:         cfg,
		log:         o.Logger,
		fallback:    o.Fallback,
		onViolation: o.OnViolation,
		sampler:     sampling.New(cfg.SampleRate),
	}

	pageSize := o.Mapper.PageSize()
	if cfg.PageSize != 0 && pageSize != 0 && cfg.PageSize != pageSize {
		return nil, fmt.Errorf("%w: page_size %d does not match platform page size %d",
			ErrConfig, cfg.PageSize, pageSize)
	}

	maxAlloc := cfg.MaxAllocSize
	if maxAlloc == 0 {
		maxAlloc = pageSize
	}
	var slotPages uintptr
	if pageSize != 0 {
		slotPages = align.Pages(maxAlloc, pageSize)
	}

	r, err := region.Reserve(o.Mapper, cfg.SlotCount, slotPages)
	if err != nil {
		d.log.Warn("gwp: guarded region unavailable, detector disabled",
			"slots", cfg.SlotCount, "slot_pages", slotPages, "error", err)
		return d, nil
	}

	d.enabled = true
	d.region = r
	d.layout = r.Layout()
	d.pool = slots.New(cfg.SlotCount, maxAlloc, cfg.Seed)
	d.meta = metadata.New(cfg.SlotCount)
	d.policy = guard.Policy{UnderflowPercent: cfg.UnderflowPercent}
	d.guard = guard.New(r, func(err error) {
		d.log.Error("gwp: protection change failed", "error", err)
		if o.OnFatal != nil {
			o.OnFatal(err)
		}
	})

	d.log.Info("gwp: detector enabled",
		"slots", cfg.SlotCount,
		"slot_bytes", d.layout.SlotCapacity(),
		"max_alloc", maxAlloc,
		"sample_rate", cfg.SampleRate,
		"region_bytes", d.layout.Size())
	return d, nil
}

// Enabled reports whether the guarded region is reserved and the detector
// has not been closed.
func (d *Detector) Enabled() bool {
	return d.enabled && !d.closed.Load()
}

// Config returns the configuration the detector was built with.
func (d *Detector) Config() Config { return d.cfg }

// Layout returns the region geometry. It is the zero Layout when the
// detector is disabled.
func (d *Detector) Layout() region.Layout { return d.layout }

// MaybeAllocate returns a guarded allocation when the request is sampled and
// a slot can hold it, or nil when the caller should use its own allocator.
// A zero alignment means 1.
func (d *Detector) MaybeAllocate(size, alignment uintptr) unsafe.Pointer {
	return d.maybeAllocate(size, alignment, 1)
}

func (d *Detector) maybeAllocate(size, alignment uintptr, depth int) unsafe.Pointer {
	if !d.Enabled() || !d.sampler.Sample() {
		return nil
	}
	return d.allocate(size, alignment, types.PlacementRandom, depth+1)
}

// GuardedAllocate bypasses sampling and places the allocation as requested.
// It returns nil when the request cannot be guarded.
func (d *Detector) GuardedAllocate(size, alignment uintptr, placement types.Placement) unsafe.Pointer {
	if !d.Enabled() {
		return nil
	}
	return d.allocate(size, alignment, placement, 1)
}

// Allocate serves the request from a guarded slot when sampled, and from the
// fallback allocator otherwise.
func (d *Detector) Allocate(size, alignment uintptr) unsafe.Pointer {
	if p := d.maybeAllocate(size, alignment, 1); p != nil {
		return p
	}
	d.fellBack.Add(1)
	return d.fallback.Allocate(size, alignment)
}

// allocate takes a slot and opens it. depth counts the detector frames
// between the user and allocate, so the recorded stack starts at the user.
func (d *Detector) allocate(size, alignment uintptr, placement types.Placement, depth int) unsafe.Pointer {
	if alignment == 0 {
		alignment = 1
	}
	if size == 0 || size > d.pool.Capacity() || !align.IsPow2(alignment) || alignment > d.layout.PageSize {
		d.unsupported.Add(1)
		return nil
	}

	p := d.policy.Resolve(placement)
	var addr uintptr
	// Record skips the closure, Pool.Acquire and allocate itself.
	_, ok := d.pool.Acquire(size, func(slot int) {
		span := d.guard.MarkAccessible(slot, size, p)
		addr = guard.Pointer(span, size, alignment, p)
		d.meta.Record(slot, metadata.Allocation{
			Addr:          addr,
			RequestedSize: size,
			AllocatedSize: span.Size,
			Placement:     p,
			Sequence:      d.seq.Add(1),
		}, depth+3)
		d.clearBadFree(slot)
	})
	if !ok {
		d.capMisses.Add(1)
		return nil
	}

	d.guarded.Add(1)
	return d.region.Pointer(addr)
}

// Owns reports whether ptr lies inside the guarded region, including its
// guard pages.
func (d *Detector) Owns(ptr unsafe.Pointer) bool {
	return d.enabled && d.layout.Contains(uintptr(ptr))
}

// Free releases a guarded allocation into quarantine and reports true, or
// reports false when ptr does not belong to the detector. Freeing a slot
// that is not allocated, or an address inside the region that is not the
// start of a live allocation, is a violation handed to Options.OnViolation.
func (d *Detector) Free(ptr unsafe.Pointer) bool {
	return d.free(ptr, 1)
}

// Deallocate frees ptr from whichever allocator produced it.
func (d *Detector) Deallocate(ptr unsafe.Pointer) {
	if d.free(ptr, 1) {
		return
	}
	d.fallback.Deallocate(ptr)
}

func (d *Detector) free(ptr unsafe.Pointer, depth int) bool {
	addr := uintptr(ptr)
	if !d.Owns(ptr) {
		return false
	}
	if d.closed.Load() {
		return true
	}
	d.frees.Add(1)

	loc := d.layout.Locate(addr)
	if loc.Kind != region.KindData {
		d.violation(addr, guardNeighbour(loc), types.ErrInvalidFree, ErrInvalidFree)
		return true
	}
	slot := loc.Slot

	// The start-address check runs inside the release so a concurrent
	// reuse of the slot cannot slip between the check and the transition.
	// RecordFree skips the closure, Pool.Release and free itself.
	err := d.pool.Release(slot, func() error {
		if rec, _ := d.meta.Lookup(slot); rec.Addr != addr {
			return errNotAllocationStart
		}
		d.guard.MarkInaccessible(slot)
		d.meta.RecordFree(slot, d.seq.Add(1), depth+3)
		d.clearBadFree(slot)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, slots.ErrNotAllocated):
		// Against a slot with no live allocation there is no start address
		// to compare, so interior pointers land here too.
		d.violation(addr, slot, types.ErrDoubleFree, ErrDoubleFree)
	default:
		d.violation(addr, slot, types.ErrInvalidFree, ErrInvalidFree)
	}
	return true
}

// errNotAllocationStart aborts a release whose pointer is not the start of
// the slot's live allocation.
var errNotAllocationStart = errors.New("gwp: pointer is not an allocation start")

// badFree is a rejected free as seen by the diagnoser. slot is the slot the
// address belongs to, or the nearest slot for a guard page.
type badFree struct {
	addr uintptr
	kind types.ErrorType
	slot int
}

// guardNeighbour picks the slot a guard-page address is filed under.
func guardNeighbour(loc region.Location) int {
	if loc.Before >= 0 {
		return loc.Before
	}
	return loc.After
}

// clearBadFree drops the recorded bad free once its slot moves on, so later
// faults at the same address are classified by what the slot holds now.
func (d *Detector) clearBadFree(slot int) {
	if b := d.badFree.Load(); b != nil && b.slot == slot {
		d.badFree.CompareAndSwap(b, nil)
	}
}

// violation records a bad free for the diagnoser and reports it.
func (d *Detector) violation(addr uintptr, slot int, kind types.ErrorType, sentinel error) {
	d.badFree.Store(&badFree{addr: addr, kind: kind, slot: slot})
	d.violations.Add(1)

	r, _ := d.Diagnose(addr)
	d.log.Error("gwp: memory-safety violation",
		"type", kind.String(),
		"addr", fmt.Sprintf("%#x", addr),
		"slot", r.Slot)
	d.onViolation(&ViolationError{Report: r, Err: sentinel})
}

// Diagnose classifies a faulting address. It does not allocate or lock and
// is safe to call from a fault handler. The boolean is false for addresses
// outside the guarded region.
func (d *Detector) Diagnose(addr uintptr) (types.Report, bool) {
	if !d.enabled {
		return types.Report{FaultAddr: addr, Slot: -1}, false
	}
	return diagnose.Diagnose(addr, (*source)(d))
}

// Close unmaps the guarded region. Pointers into it become invalid; frees of
// them are ignored. Close must not race with allocation.
func (d *Detector) Close() error {
	if !d.enabled || d.closed.Swap(true) {
		return nil
	}
	if err := d.region.Release(); err != nil {
		return fmt.Errorf("gwp: close: %w", err)
	}
	d.log.Info("gwp: detector closed", "guarded", d.guarded.Load(), "violations", d.violations.Load())
	return nil
}

// source exposes the detector to the diagnoser without widening its API.
type source Detector

func (s *source) Layout() region.Layout { return s.layout }

func (s *source) SlotState(slot int) types.SlotState { return s.pool.State(slot) }

func (s *source) Lookup(slot int) (metadata.Record, bool) { return s.meta.Lookup(slot) }

func (s *source) BadFree() (uintptr, types.ErrorType, bool) {
	b := s.badFree.Load()
	if b == nil {
		return 0, types.ErrUnknown, false
	}
	return b.addr, b.kind, true
}
