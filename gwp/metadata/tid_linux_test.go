//go:build linux

package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadID_Linux(t *testing.T) {
	assert.NotZero(t, threadID())
}
