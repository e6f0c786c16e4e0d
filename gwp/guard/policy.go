package guard

import (
	"math/rand/v2"

	"github.com/joshuapare/gwpkit/pkg/types"
)

// DefaultUnderflowPercent splits placements evenly between both ends.
const DefaultUnderflowPercent = 50

// Policy picks a placement for allocations that did not ask for one.
type Policy struct {
	// UnderflowPercent is the share of allocations placed left, against the
	// leading guard. The remainder is placed right, against the trailing
	// guard. Values are clamped to [0, 100].
	UnderflowPercent int
}

// Resolve returns req unless it is PlacementRandom, in which case it draws a
// placement according to the policy.
func (p Policy) Resolve(req types.Placement) types.Placement {
	if req != types.PlacementRandom {
		return req
	}
	switch {
	case p.UnderflowPercent <= 0:
		return types.PlacementRight
	case p.UnderflowPercent >= 100:
		return types.PlacementLeft
	case rand.IntN(100) < p.UnderflowPercent:
		return types.PlacementLeft
	default:
		return types.PlacementRight
	}
}
