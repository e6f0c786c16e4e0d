// Package guard flips the protection of slot data pages and decides where
// inside a slot an allocation lives.
//
// Only the pages that cover an allocation are opened; the rest of the slot
// and every guard page stay inaccessible. Freed slots are remapped rather
// than mprotect'ed so the kernel reclaims their frames immediately.
//
// A protection change that fails means something outside the detector
// touched the region. The controller never continues past such a failure:
// it notifies the fatal hook and panics.
package guard

import (
	"errors"
	"fmt"

	"github.com/joshuapare/gwpkit/gwp/region"
	"github.com/joshuapare/gwpkit/internal/align"
	"github.com/joshuapare/gwpkit/pkg/types"
)

// ErrProtection wraps every protection-change failure.
var ErrProtection = errors.New("guard: protection change failed")

// FatalFunc is notified of a protection failure before the controller panics.
type FatalFunc func(err error)

// Span is the accessible part of a slot.
type Span struct {
	Start uintptr
	Size  uintptr
}

// End is one past the last accessible byte.
func (s Span) End() uintptr { return s.Start + s.Size }

// Controller opens and closes slots of one region.
type Controller struct {
	region *region.Region
	fatal  FatalFunc
}

// New returns a controller for r. fatal may be nil.
func New(r *region.Region, fatal FatalFunc) *Controller {
	return &Controller{region: r, fatal: fatal}
}

// MarkAccessible opens the pages of slot needed for size bytes, at the end
// of the slot selected by p (PlacementLeft or PlacementRight).
func (c *Controller) MarkAccessible(slot int, size uintptr, p types.Placement) Span {
	l := c.region.Layout()
	n := align.Up(size, l.PageSize)
	start := l.SlotStart(slot)
	if p == types.PlacementRight {
		start = l.SlotEnd(slot) - n
	}
	if err := c.region.Mapper().MarkAccessible(c.region.Pointer(start), n); err != nil {
		c.fail(fmt.Errorf("%w: open slot %d: %w", ErrProtection, slot, err))
	}
	return Span{Start: start, Size: n}
}

// MarkInaccessible closes every data page of slot.
func (c *Controller) MarkInaccessible(slot int) {
	l := c.region.Layout()
	if err := c.region.Mapper().MarkInaccessible(c.region.SlotData(slot), l.SlotCapacity()); err != nil {
		c.fail(fmt.Errorf("%w: close slot %d: %w", ErrProtection, slot, err))
	}
}

func (c *Controller) fail(err error) {
	if c.fatal != nil {
		c.fatal(err)
	}
	panic(err)
}

// Pointer places an allocation of size bytes inside span. Left placement
// starts at the first accessible byte; right placement ends as close to the
// trailing guard as alignment allows. alignment must be a power of two; zero
// means byte alignment.
func Pointer(span Span, size, alignment uintptr, p types.Placement) uintptr {
	if p != types.PlacementRight {
		return span.Start
	}
	if alignment == 0 {
		alignment = 1
	}
	return align.Down(span.End()-size, alignment)
}
