package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlacement(t *testing.T) {
	tests := []struct {
		in      string
		want    Placement
		wantErr bool
	}{
		{"", PlacementRandom, false},
		{"random", PlacementRandom, false},
		{"left", PlacementLeft, false},
		{"underflow", PlacementLeft, false},
		{"right", PlacementRight, false},
		{"overflow", PlacementRight, false},
		{"middle", PlacementRandom, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlacement(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()), "String round-trips")
		})
	}
}

func mustParse(t *testing.T, s string) Placement {
	t.Helper()
	p, err := ParsePlacement(s)
	require.NoError(t, err)
	return p
}

func TestSlotState_String(t *testing.T) {
	assert.Equal(t, "free", SlotFree.String())
	assert.Equal(t, "allocated", SlotAllocated.String())
	assert.Equal(t, "quarantined", SlotQuarantined.String())
	assert.Equal(t, "SlotState(9)", SlotState(9).String())

	b, err := SlotQuarantined.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "quarantined", string(b))
}

func TestTrace_StackClamps(t *testing.T) {
	var tr Trace
	assert.Empty(t, tr.Stack())
	assert.Nil(t, tr.Frames())

	tr.Depth = MaxStackFrames + 5
	assert.Len(t, tr.Stack(), MaxStackFrames)
	tr.Depth = -1
	assert.Empty(t, tr.Stack())
}
