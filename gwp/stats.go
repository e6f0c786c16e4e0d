package gwp

import "github.com/joshuapare/gwpkit/pkg/types"

// Stats is a point-in-time view of detector activity. Counters are read
// individually and may be mutually inconsistent under load.
type Stats struct {
	Enabled    bool   `json:"enabled"`
	SampleRate uint64 `json:"sample_rate"`

	Sampled    uint64 `json:"sampled"`
	NotSampled uint64 `json:"not_sampled"`

	Guarded        uint64 `json:"guarded"`
	Fallback       uint64 `json:"fallback"`
	CapacityMisses uint64 `json:"capacity_misses"`
	Unsupported    uint64 `json:"unsupported"`
	Frees          uint64 `json:"frees"`
	Evictions      uint64 `json:"evictions"`
	Violations     uint64 `json:"violations"`

	FreeSlots        int `json:"free_slots"`
	AllocatedSlots   int `json:"allocated_slots"`
	QuarantinedSlots int `json:"quarantined_slots"`
}

// Stats returns the current counters.
func (d *Detector) Stats() Stats {
	s := Stats{
		Enabled:        d.Enabled(),
		SampleRate:     d.sampler.Rate(),
		Guarded:        d.guarded.Load(),
		Fallback:       d.fellBack.Load(),
		CapacityMisses: d.capMisses.Load(),
		Unsupported:    d.unsupported.Load(),
		Frees:          d.frees.Load(),
		Violations:     d.violations.Load(),
	}
	s.Sampled, s.NotSampled = d.sampler.Counts()
	if d.enabled {
		s.Evictions = d.pool.Evictions()
		s.FreeSlots, s.AllocatedSlots, s.QuarantinedSlots = d.pool.Counts()
	}
	return s
}

// SlotInfo describes one slot in a Snapshot.
type SlotInfo struct {
	Slot      int             `json:"slot"`
	State     types.SlotState `json:"state"`
	DataStart uintptr         `json:"data_start"`

	Addr          uintptr         `json:"addr,omitempty"`
	RequestedSize uintptr         `json:"requested_size,omitempty"`
	AllocatedSize uintptr         `json:"allocated_size,omitempty"`
	Placement     types.Placement `json:"placement"`
	AllocSeq      uint64          `json:"alloc_seq,omitempty"`
	FreeSeq       uint64          `json:"free_seq,omitempty"`
	Consistent    bool            `json:"consistent"`
}

// Snapshot lists every slot with its state and last recorded allocation.
// Unlike Diagnose it allocates and is meant for dumps, not fault handlers.
func (d *Detector) Snapshot() []SlotInfo {
	if !d.enabled {
		return nil
	}
	out := make([]SlotInfo, d.layout.Slots)
	for i := range out {
		rec, ok := d.meta.Lookup(i)
		info := SlotInfo{
			Slot:       i,
			State:      d.pool.State(i),
			DataStart:  d.layout.SlotStart(i),
			Placement:  rec.Placement,
			Consistent: ok,
		}
		if info.State != types.SlotFree || rec.Alloc.Sequence != 0 {
			info.Addr = rec.Addr
			info.RequestedSize = rec.RequestedSize
			info.AllocatedSize = rec.AllocatedSize
			info.AllocSeq = rec.Alloc.Sequence
			if rec.Deallocated {
				info.FreeSeq = rec.Dealloc.Sequence
			}
		}
		out[i] = info
	}
	return out
}
