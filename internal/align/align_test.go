package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUp(t *testing.T) {
	tests := []struct {
		n, a, want uintptr
	}{
		{0, 4096, 0},
		{1, 4096, 4096},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
		{13, 16, 16},
		{16, 16, 16},
		{7, 1, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Up(tt.n, tt.a), "Up(%d, %d)", tt.n, tt.a)
	}
}

func TestDown(t *testing.T) {
	assert.Equal(t, uintptr(4080), Down(4095, 16))
	assert.Equal(t, uintptr(4096), Down(4096, 16))
	assert.Equal(t, uintptr(4095), Down(4095, 1))
}

func TestIsPow2(t *testing.T) {
	assert.False(t, IsPow2(0))
	assert.True(t, IsPow2(1))
	assert.True(t, IsPow2(4096))
	assert.False(t, IsPow2(24))
}

func TestPages(t *testing.T) {
	assert.Equal(t, uintptr(1), Pages(1, 4096))
	assert.Equal(t, uintptr(1), Pages(4096, 4096))
	assert.Equal(t, uintptr(2), Pages(4097, 4096))
	assert.Equal(t, uintptr(0), Pages(0, 4096))
}
