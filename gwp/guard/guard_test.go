package guard

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/gwpkit/gwp/region"
	"github.com/joshuapare/gwpkit/internal/testutil"
	"github.com/joshuapare/gwpkit/internal/vmem"
	"github.com/joshuapare/gwpkit/pkg/types"
)

const page = 4096

func newFakeRegion(t *testing.T, slots int, slotPages uintptr) (*region.Region, *testutil.FakeMapper) {
	t.Helper()
	m := testutil.NewFakeMapper(page)
	r, err := region.Reserve(m, slots, slotPages)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })
	return r, m
}

func TestController_MarkAccessibleLeft(t *testing.T) {
	r, m := newFakeRegion(t, 2, 3)
	c := New(r, nil)
	l := r.Layout()

	span := c.MarkAccessible(1, 100, types.PlacementLeft)
	assert.Equal(t, l.SlotStart(1), span.Start)
	assert.Equal(t, uintptr(page), span.Size)

	assert.Equal(t, testutil.ProtReadWrite, m.ProtectionAt(l.SlotStart(1)))
	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotStart(1)+page), "pages beyond the allocation stay closed")
	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotStart(1)-page), "leading guard stays closed")
}

func TestController_MarkAccessibleRight(t *testing.T) {
	r, m := newFakeRegion(t, 2, 3)
	c := New(r, nil)
	l := r.Layout()

	span := c.MarkAccessible(0, page+1, types.PlacementRight)
	assert.Equal(t, l.SlotEnd(0), span.End())
	assert.Equal(t, uintptr(2*page), span.Size)

	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotStart(0)))
	assert.Equal(t, testutil.ProtReadWrite, m.ProtectionAt(l.SlotStart(0)+page))
	assert.Equal(t, testutil.ProtReadWrite, m.ProtectionAt(l.SlotStart(0)+2*page))
	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotEnd(0)), "trailing guard stays closed")
}

func TestController_MarkInaccessibleClosesWholeSlot(t *testing.T) {
	r, m := newFakeRegion(t, 1, 2)
	c := New(r, nil)
	l := r.Layout()

	c.MarkAccessible(0, 2*page, types.PlacementLeft)
	c.MarkInaccessible(0)
	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotStart(0)))
	assert.Equal(t, testutil.ProtNone, m.ProtectionAt(l.SlotStart(0)+page))
	assert.Equal(t, 1, m.InaccessCalls)
}

func TestController_FailureIsFatal(t *testing.T) {
	r, m := newFakeRegion(t, 1, 1)

	var notified error
	c := New(r, func(err error) { notified = err })

	m.FailProtect = true
	require.Panics(t, func() { c.MarkAccessible(0, 8, types.PlacementLeft) })
	require.ErrorIs(t, notified, ErrProtection)
	require.ErrorIs(t, notified, testutil.ErrInjected)

	m.FailProtect = false
	m.FailUnprotect = true
	notified = nil
	require.Panics(t, func() { c.MarkInaccessible(0) })
	require.ErrorIs(t, notified, ErrProtection)
}

func TestController_FailureWithoutHookStillPanics(t *testing.T) {
	r, m := newFakeRegion(t, 1, 1)
	m.FailProtect = true
	c := New(r, nil)
	require.Panics(t, func() { c.MarkAccessible(0, 8, types.PlacementRight) })
}

func TestPointer(t *testing.T) {
	span := Span{Start: 0x10000, Size: 0x1000}

	tests := []struct {
		name      string
		size      uintptr
		alignment uintptr
		placement types.Placement
		want      uintptr
	}{
		{"left", 16, 16, types.PlacementLeft, 0x10000},
		{"right exact", 0x1000, 16, types.PlacementRight, 0x10000},
		{"right byte aligned", 13, 1, types.PlacementRight, 0x10FF3},
		{"right zero alignment", 13, 0, types.PlacementRight, 0x10FF3},
		{"right 16 aligned", 13, 16, types.PlacementRight, 0x10FF0},
		{"right 64 aligned", 100, 64, types.PlacementRight, 0x10F80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pointer(span, tt.size, tt.alignment, tt.placement)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got+tt.size, span.End(), "allocation must fit in the span")
		})
	}
}

func TestController_Platform(t *testing.T) {
	r, err := region.Reserve(vmem.New(), 2, 1)
	if err != nil {
		t.Skipf("platform mapper unavailable: %v", err)
	}
	defer r.Release()
	c := New(r, nil)
	ps := r.Layout().PageSize

	// right placement: one byte past the allocation hits the trailing guard
	span := c.MarkAccessible(0, ps, types.PlacementRight)
	p := r.Pointer(Pointer(span, ps, 1, types.PlacementRight))
	assert.False(t, testutil.Store(p, 1))
	assert.False(t, testutil.Store(unsafe.Add(p, ps-1), 1))
	assert.True(t, testutil.Store(unsafe.Add(p, ps), 1), "overflow should fault")

	// left placement: one byte before the allocation hits the leading guard
	span = c.MarkAccessible(1, 16, types.PlacementLeft)
	q := r.Pointer(Pointer(span, 16, 16, types.PlacementLeft))
	assert.False(t, testutil.Store(q, 1))
	assert.True(t, testutil.Store(unsafe.Add(q, -1), 1), "underflow should fault")

	c.MarkInaccessible(1)
	_, faulted := testutil.Load(q)
	assert.True(t, faulted, "closed slot should fault")
}
