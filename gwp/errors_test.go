package gwp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuapare/gwpkit/pkg/types"
)

func TestViolationError(t *testing.T) {
	v := &ViolationError{
		Report: types.Report{Type: types.ErrInvalidFree, FaultAddr: 0x1000, Slot: -1},
		Err:    ErrInvalidFree,
	}
	assert.True(t, errors.Is(v, ErrInvalidFree))
	assert.False(t, errors.Is(v, ErrDoubleFree))
	assert.Equal(t, "gwp: invalid free: invalid-free at 0x1000", v.Error())
}
