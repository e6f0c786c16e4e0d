package metadata

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/gwpkit/pkg/types"
)

func TestStore_RecordLookup(t *testing.T) {
	s := New(4)
	require.Equal(t, 4, s.Len())

	s.Record(2, Allocation{
		Addr:          0x7000_1000,
		RequestedSize: 100,
		AllocatedSize: 4096,
		Placement:     types.PlacementRight,
		Sequence:      7,
	}, 0)

	r, ok := s.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x7000_1000), r.Addr)
	assert.Equal(t, uintptr(100), r.RequestedSize)
	assert.Equal(t, uintptr(4096), r.AllocatedSize)
	assert.Equal(t, types.PlacementRight, r.Placement)
	assert.Equal(t, uint64(7), r.Sequence)
	assert.Equal(t, uint64(7), r.Alloc.Sequence)
	assert.False(t, r.Deallocated)
	assert.Zero(t, r.Dealloc.Depth)

	frames := r.Alloc.Frames()
	require.NotEmpty(t, frames)
	assert.True(t, strings.HasSuffix(frames[0].Function, "TestStore_RecordLookup"),
		"first frame should be the caller of Record, got %s", frames[0].Function)
}

func recordFreeHelper(s *Store, slot int) {
	s.RecordFree(slot, 9, 1)
}

func TestStore_RecordFree(t *testing.T) {
	s := New(1)
	s.Record(0, Allocation{Addr: 0x1000, RequestedSize: 8, AllocatedSize: 4096, Sequence: 1}, 0)
	recordFreeHelper(s, 0)

	r, ok := s.Lookup(0)
	require.True(t, ok)
	assert.True(t, r.Deallocated)
	assert.Equal(t, uint64(9), r.Dealloc.Sequence)
	assert.Equal(t, uint64(1), r.Alloc.Sequence, "free must not disturb the allocation trace")

	frames := r.Dealloc.Frames()
	require.NotEmpty(t, frames)
	assert.True(t, strings.HasSuffix(frames[0].Function, "TestStore_RecordFree"),
		"skip=1 should drop the helper frame, got %s", frames[0].Function)
}

func TestStore_ReuseOverwrites(t *testing.T) {
	s := New(1)
	s.Record(0, Allocation{Addr: 0x1000, RequestedSize: 8, AllocatedSize: 4096, Sequence: 1}, 0)
	s.RecordFree(0, 2, 0)
	s.Record(0, Allocation{Addr: 0x1ff0, RequestedSize: 16, AllocatedSize: 4096, Sequence: 3}, 0)

	r, ok := s.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1ff0), r.Addr)
	assert.Equal(t, uint64(3), r.Sequence)
	assert.False(t, r.Deallocated)
	assert.Zero(t, r.Dealloc.Depth, "the previous occupant's free trace is discarded")
}

func TestStore_LookupOutOfRange(t *testing.T) {
	s := New(1)
	_, ok := s.Lookup(-1)
	assert.False(t, ok)
	_, ok = s.Lookup(1)
	assert.False(t, ok)
}

func TestStore_NeverObservedHalfWritten(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency test in short mode")
	}
	s := New(1)
	s.Record(0, Allocation{Addr: 1, RequestedSize: 1, AllocatedSize: 1, Sequence: 1}, 0)

	var stop atomic.Bool
	var torn, consistent atomic.Int64
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				r, ok := s.Lookup(0)
				if !ok {
					continue
				}
				consistent.Add(1)
				v := uint64(r.Addr)
				if uint64(r.RequestedSize) != v || uint64(r.AllocatedSize) != v || r.Sequence != v {
					torn.Add(1)
				}
			}
		}()
	}

	for i := uint64(2); i < 20000; i++ {
		s.Record(0, Allocation{
			Addr:          uintptr(i),
			RequestedSize: uintptr(i),
			AllocatedSize: uintptr(i),
			Sequence:      i,
		}, 0)
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load(), "a consistent lookup returned a half-written record")
	t.Logf("%d consistent reads", consistent.Load())

	r, ok := s.Lookup(0)
	require.True(t, ok, "a quiescent record must read back consistently")
	assert.Equal(t, uintptr(19999), r.Addr)
}
