// Package fallback provides a reference fallback allocator for requests the
// guarded path does not take.
//
// Heap hands out memory from the Go heap and keeps every live block
// reachable until it is deallocated, so callers may hold the returned
// pointer in forms the garbage collector cannot see. Blocks contain no Go
// pointers and are never scanned.
package fallback

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/gwpkit/internal/align"
)

// Heap is a thread-safe allocator backed by Go byte slices.
type Heap struct {
	live  sync.Map // uintptr -> []byte
	count atomic.Int64
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Allocate returns size bytes aligned to alignment (a power of two; zero
// means 1). Zero-size requests get a distinct one-byte block.
func (h *Heap) Allocate(size, alignment uintptr) unsafe.Pointer {
	if alignment == 0 || !align.IsPow2(alignment) {
		alignment = 1
	}
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size+alignment-1)
	start := unsafe.Pointer(unsafe.SliceData(buf))
	p := unsafe.Add(start, align.Up(uintptr(start), alignment)-uintptr(start))
	h.live.Store(uintptr(p), buf)
	h.count.Add(1)
	return p
}

// Deallocate releases a block returned by Allocate. Unknown pointers are
// ignored.
func (h *Heap) Deallocate(p unsafe.Pointer) {
	if _, ok := h.live.LoadAndDelete(uintptr(p)); ok {
		h.count.Add(-1)
	}
}

// Live returns how many blocks are currently allocated.
func (h *Heap) Live() int {
	return int(h.count.Load())
}
