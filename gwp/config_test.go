package gwp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero slots", func(c *Config) { c.SlotCount = 0 }, true},
		{"too many slots", func(c *Config) { c.SlotCount = MaxSlots + 1 }, true},
		{"negative underflow", func(c *Config) { c.UnderflowPercent = -1 }, true},
		{"underflow over 100", func(c *Config) { c.UnderflowPercent = 101 }, true},
		{"all underflow", func(c *Config) { c.UnderflowPercent = 100 }, false},
		{"odd page size", func(c *Config) { c.PageSize = 3000 }, true},
		{"huge max alloc", func(c *Config) { c.MaxAllocSize = 1<<30 + 1 }, true},
		{"sampling disabled", func(c *Config) { c.SampleRate = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gwp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sample_rate": 50, "slot_count": 8}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cfg.SampleRate)
	assert.Equal(t, 8, cfg.SlotCount)
	assert.Equal(t, DefaultConfig().UnderflowPercent, cfg.UnderflowPercent, "missing fields keep defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ParseConfig([]byte(`{"slot_cnt": 8}`))
	require.ErrorIs(t, err, ErrConfig)

	_, err = ParseConfig([]byte(`{"slot_count": -1}`))
	require.ErrorIs(t, err, ErrConfig)

	_, err = ParseConfig([]byte(`not json`))
	require.ErrorIs(t, err, ErrConfig)
}
