package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/gwpkit/gwp"
)

func TestStressCommand(t *testing.T) {
	cfg := gwp.DefaultConfig()
	cfg.SampleRate = 2
	cfg.SlotCount = 16

	out, err := captureOutput(t, func() error {
		return runStress(cfg, stressOptions{Workers: 4, Iterations: 500, Size: 48, Hold: 3})
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:        2,000")
	assert.Contains(t, out, "expected 50.0000%")
}

func TestStressCommand_JSON(t *testing.T) {
	cfg := gwp.DefaultConfig()
	cfg.SampleRate = 1
	cfg.SlotCount = 8

	var out string
	var err error
	withJSON(t, func() {
		out, err = captureOutput(t, func() error {
			return runStress(cfg, stressOptions{Workers: 2, Iterations: 200, Size: 16, Hold: 2})
		})
	})
	require.NoError(t, err)

	var res stressResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Workers)
	assert.Equal(t, uint64(400), res.Stats.Guarded+res.Stats.Fallback)
	assert.Zero(t, res.Stats.Violations)
	if res.Stats.Enabled {
		assert.Zero(t, res.Stats.AllocatedSlots)
	}
}

func TestStressCommand_BadOptions(t *testing.T) {
	err := runStress(gwp.DefaultConfig(), stressOptions{Workers: 0, Iterations: 1, Size: 1})
	require.Error(t, err)
}
