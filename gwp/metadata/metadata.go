// Package metadata keeps one fixed-size diagnostic record per guarded slot.
//
// Records are preallocated and never grow, so the crash-time diagnoser can
// read them from a fault handler without allocating. Every field is stored
// through an atomic and each record carries a sequence counter: writers make
// it odd while updating and even when done, readers retry until they see the
// same even value before and after copying. A reader that keeps losing the
// race gets its last copy back flagged as inconsistent instead of blocking.
//
// Each slot has at most one writer at a time: both the allocation and the
// deallocation record are written under the slot pool lock.
package metadata

import (
	"runtime"
	"sync/atomic"

	"github.com/joshuapare/gwpkit/pkg/types"
)

// maxReadAttempts bounds how long Lookup spins on a record being rewritten.
const maxReadAttempts = 8

// Allocation is what the front-end knows about a guarded allocation.
type Allocation struct {
	Addr          uintptr
	RequestedSize uintptr
	AllocatedSize uintptr
	Placement     types.Placement
	Sequence      uint64
}

// Record is a point-in-time copy of one slot's metadata.
type Record struct {
	Allocation
	Alloc       types.Trace
	Dealloc     types.Trace
	Deallocated bool
}

type trace struct {
	tid   atomic.Uint64
	seq   atomic.Uint64
	depth atomic.Int64
	pcs   [types.MaxStackFrames]atomic.Uintptr
}

func (t *trace) load(out *types.Trace) {
	out.ThreadID = t.tid.Load()
	out.Sequence = t.seq.Load()
	d := t.depth.Load()
	if d < 0 || d > types.MaxStackFrames {
		d = 0
	}
	out.Depth = int(d)
	for i := range out.Depth {
		out.PCs[i] = t.pcs[i].Load()
	}
}

func (t *trace) reset() {
	t.tid.Store(0)
	t.seq.Store(0)
	t.depth.Store(0)
}

type entry struct {
	version     atomic.Uint64
	addr        atomic.Uintptr
	reqSize     atomic.Uintptr
	allocSize   atomic.Uintptr
	placement   atomic.Uint32
	deallocated atomic.Bool
	alloc       trace
	dealloc     trace
}

// Store is the per-slot metadata table.
type Store struct {
	entries []entry
}

// New preallocates records for n slots.
func New(n int) *Store {
	return &Store{entries: make([]entry, n)}
}

// Len is the number of records.
func (s *Store) Len() int { return len(s.entries) }

// Record overwrites slot's metadata for a new allocation and captures the
// calling goroutine's stack. skip drops that many frames above the caller
// of Record. The previous occupant's traces are discarded.
func (s *Store) Record(slot int, a Allocation, skip int) {
	e := &s.entries[slot]
	e.version.Add(1)
	e.addr.Store(a.Addr)
	e.reqSize.Store(a.RequestedSize)
	e.allocSize.Store(a.AllocatedSize)
	e.placement.Store(uint32(a.Placement))
	e.deallocated.Store(false)
	capture(&e.alloc, a.Sequence, skip)
	e.dealloc.reset()
	e.version.Add(1)
}

// RecordFree stores the deallocation trace for slot.
func (s *Store) RecordFree(slot int, seq uint64, skip int) {
	e := &s.entries[slot]
	e.version.Add(1)
	capture(&e.dealloc, seq, skip)
	e.deallocated.Store(true)
	e.version.Add(1)
}

// Lookup copies slot's metadata. The boolean is false when the record kept
// changing underneath the reader; the copy is then best-effort. Lookup
// neither allocates nor blocks.
func (s *Store) Lookup(slot int) (Record, bool) {
	var r Record
	if slot < 0 || slot >= len(s.entries) {
		return r, false
	}
	e := &s.entries[slot]
	for range maxReadAttempts {
		v1 := e.version.Load()
		if v1&1 != 0 {
			continue
		}
		e.read(&r)
		if e.version.Load() == v1 {
			return r, true
		}
	}
	e.read(&r)
	return r, false
}

func (e *entry) read(r *Record) {
	r.Addr = e.addr.Load()
	r.RequestedSize = e.reqSize.Load()
	r.AllocatedSize = e.allocSize.Load()
	r.Placement = types.Placement(e.placement.Load())
	r.Deallocated = e.deallocated.Load()
	e.alloc.load(&r.Alloc)
	r.Sequence = r.Alloc.Sequence
	e.dealloc.load(&r.Dealloc)
}

// capture records the stack of the goroutine calling Record/RecordFree.
func capture(t *trace, seq uint64, skip int) {
	var pcs [types.MaxStackFrames]uintptr
	// 0 = runtime.Callers, 1 = capture, 2 = Record/RecordFree, 3 = their caller
	n := runtime.Callers(3+skip, pcs[:])
	for i := range n {
		t.pcs[i].Store(pcs[i])
	}
	t.depth.Store(int64(n))
	t.seq.Store(seq)
	t.tid.Store(threadID())
}
