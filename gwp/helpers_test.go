package gwp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/gwpkit/gwp/fallback"
	"github.com/joshuapare/gwpkit/internal/testutil"
)

const testPage = 4096

// harness bundles a detector over a FakeMapper with its collaborators.
type harness struct {
	d          *Detector
	mapper     *testutil.FakeMapper
	heap       *fallback.Heap
	violations []*ViolationError
	fatal      []error
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SampleRate = 1
	cfg.SlotCount = 10
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		mapper: testutil.NewFakeMapper(testPage),
		heap:   fallback.NewHeap(),
	}
	d, err := New(cfg, &Options{
		Fallback:    h.heap,
		Mapper:      h.mapper,
		OnFatal:     func(err error) { h.fatal = append(h.fatal, err) },
		OnViolation: func(v *ViolationError) { h.violations = append(h.violations, v) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	h.d = d
	return h
}
