package types

import "fmt"

// SlotState is the lifecycle state of a guarded slot.
//
// Slots cycle Free -> Allocated -> Quarantined -> Free. A Quarantined slot's
// data pages are always inaccessible; the pages covering an Allocated
// slot's allocation are always accessible.
type SlotState uint32

const (
	SlotFree        SlotState = iota // never used, or evicted and not yet reclaimed
	SlotAllocated                    // holds a live allocation
	SlotQuarantined                  // freed; memory inaccessible, metadata retained
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotAllocated:
		return "allocated"
	case SlotQuarantined:
		return "quarantined"
	default:
		return fmt.Sprintf("SlotState(%d)", uint32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SlotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Placement says which end of a slot an allocation is pushed against.
type Placement uint8

const (
	// PlacementRandom lets the detector's placement policy decide.
	PlacementRandom Placement = iota

	// PlacementLeft puts the allocation at the start of the slot, abutting
	// the leading guard page. Underflows fault immediately; overflows only
	// fault once they leave the last accessible page.
	PlacementLeft

	// PlacementRight puts the end of the allocation against the trailing
	// guard page. Overflows fault immediately (modulo alignment padding);
	// underflows only fault once they leave the first accessible page.
	PlacementRight
)

func (p Placement) String() string {
	switch p {
	case PlacementRandom:
		return "random"
	case PlacementLeft:
		return "left"
	case PlacementRight:
		return "right"
	default:
		return fmt.Sprintf("Placement(%d)", uint8(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Placement) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePlacement converts a placement name ("left", "right", "random", or the
// aliases "underflow"/"overflow") into a Placement.
func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "random", "":
		return PlacementRandom, nil
	case "left", "underflow":
		return PlacementLeft, nil
	case "right", "overflow":
		return PlacementRight, nil
	default:
		return PlacementRandom, fmt.Errorf("types: unknown placement %q", s)
	}
}
