// Package slots tracks the lifecycle of guarded slots and decides which slot
// serves the next guarded allocation.
//
// Selection is random on purpose. Free slots are drawn uniformly at random
// rather than lowest-index first, and when no slot is free a quarantined
// slot is evicted uniformly at random rather than oldest first. Predictable
// reuse would let bugs that always land in the same slot go unseen, and
// random eviction keeps the expected quarantine dwell time long without
// bounding it.
//
// All transitions happen under one mutex per pool operation. Slot states are
// also published through atomics so the crash-time diagnoser can read them
// without taking the lock.
package slots

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/gwpkit/pkg/types"
)

var (
	// ErrNotAllocated indicates a release of a slot that is Free or
	// Quarantined, i.e. a double free.
	ErrNotAllocated = errors.New("slots: slot is not allocated")

	// ErrBadSlot indicates a slot index outside the pool.
	ErrBadSlot = errors.New("slots: slot index out of range")
)

// Pool owns the Free/Allocated/Quarantined bookkeeping for n slots.
type Pool struct {
	capacity uintptr
	states   []atomic.Uint32

	evictions atomic.Uint64

	mu         sync.Mutex
	free       []int
	quarantine []int
	rng        *rand.Rand
}

// New creates a pool of n free slots, each able to hold capacity bytes.
// A zero seed draws the selection seed from the runtime generator.
func New(n int, capacity uintptr, seed uint64) *Pool {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
	p := &Pool{
		capacity:   capacity,
		states:     make([]atomic.Uint32, n),
		free:       make([]int, n),
		quarantine: make([]int, 0, n),
		rng:        rand.New(src),
	}
	for i := range p.free {
		p.free[i] = i
	}
	return p
}

// Len is the number of slots in the pool.
func (p *Pool) Len() int { return len(p.states) }

// Capacity is the largest allocation a slot can hold.
func (p *Pool) Capacity() uintptr { return p.capacity }

// Evictions counts quarantined slots reclaimed for new allocations.
func (p *Pool) Evictions() uint64 { return p.evictions.Load() }

// State returns the current state of slot i without locking. Out-of-range
// indexes report SlotFree.
func (p *Pool) State(i int) types.SlotState {
	if i < 0 || i >= len(p.states) {
		return types.SlotFree
	}
	return types.SlotState(p.states[i].Load())
}

// Acquire claims a slot for an allocation of size bytes and marks it
// Allocated. claim, when non-nil, runs under the pool lock before the state
// flips, so opening the slot and recording its metadata cannot interleave
// with a Release of the same slot. Acquire returns false when size does not
// fit a slot or every slot is Allocated; callers then use their fallback
// allocator.
func (p *Pool) Acquire(size uintptr, claim func(slot int)) (int, bool) {
	if size == 0 || size > p.capacity {
		return -1, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var slot int
	switch {
	case len(p.free) > 0:
		slot, p.free = takeRandom(p.rng, p.free)
	case len(p.quarantine) > 0:
		slot, p.quarantine = takeRandom(p.rng, p.quarantine)
		p.evictions.Add(1)
	default:
		return -1, false
	}
	if claim != nil {
		claim(slot)
	}
	p.states[slot].Store(uint32(types.SlotAllocated))
	return slot, true
}

// Release moves slot i from Allocated to Quarantined. quarantine runs under
// the pool lock before the state flips; an error from it aborts the release
// and is returned unchanged, leaving the slot Allocated. A slot that is not
// Allocated yields ErrNotAllocated and is left untouched.
func (p *Pool) Release(i int, quarantine func() error) error {
	if i < 0 || i >= len(p.states) {
		return fmt.Errorf("%w: %d", ErrBadSlot, i)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if st := types.SlotState(p.states[i].Load()); st != types.SlotAllocated {
		return fmt.Errorf("%w: slot %d is %s", ErrNotAllocated, i, st)
	}
	if quarantine != nil {
		if err := quarantine(); err != nil {
			return err
		}
	}
	p.states[i].Store(uint32(types.SlotQuarantined))
	p.quarantine = append(p.quarantine, i)
	return nil
}

// Counts returns how many slots are in each state.
func (p *Pool) Counts() (free, allocated, quarantined int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	free = len(p.free)
	quarantined = len(p.quarantine)
	return free, len(p.states) - free - quarantined, quarantined
}

// takeRandom removes and returns a uniformly chosen element of list.
func takeRandom(rng *rand.Rand, list []int) (int, []int) {
	i := rng.IntN(len(list))
	v := list[i]
	last := len(list) - 1
	list[i] = list[last]
	return v, list[:last]
}
