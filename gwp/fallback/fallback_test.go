package fallback

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_AllocateAligned(t *testing.T) {
	h := NewHeap()
	for _, a := range []uintptr{0, 1, 8, 16, 64, 4096} {
		p := h.Allocate(100, a)
		require.NotNil(t, p)
		if a > 1 {
			assert.Zero(t, uintptr(p)%a, "alignment %d", a)
		}
		// whole block is writable
		b := unsafe.Slice((*byte)(p), 100)
		for i := range b {
			b[i] = byte(i)
		}
	}
	assert.Equal(t, 6, h.Live())
}

func TestHeap_ZeroSize(t *testing.T) {
	h := NewHeap()
	a := h.Allocate(0, 0)
	b := h.Allocate(0, 0)
	require.NotNil(t, a)
	assert.NotEqual(t, a, b)
}

func TestHeap_Deallocate(t *testing.T) {
	h := NewHeap()
	p := h.Allocate(32, 8)
	require.Equal(t, 1, h.Live())

	h.Deallocate(p)
	assert.Equal(t, 0, h.Live())

	// unknown and repeated frees are ignored
	h.Deallocate(p)
	var x int
	h.Deallocate(unsafe.Pointer(&x))
	assert.Equal(t, 0, h.Live())
}

func TestHeap_Concurrent(t *testing.T) {
	h := NewHeap()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				p := h.Allocate(uintptr(i%128+1), 16)
				h.Deallocate(p)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Live())
}
