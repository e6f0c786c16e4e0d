package gwp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joshuapare/gwpkit/gwp/guard"
	"github.com/joshuapare/gwpkit/internal/align"
)

// MaxSlots bounds Config.SlotCount.
const MaxSlots = 1 << 20

// Config is the data a host loads to configure a Detector.
type Config struct {
	// SampleRate guards one request in SampleRate. 0 disables sampling,
	// 1 guards everything that fits.
	// Default: 1000
	SampleRate uint64 `json:"sample_rate"`

	// SlotCount is the number of guarded slots, i.e. the maximum number of
	// live plus quarantined guarded allocations.
	// Default: 64
	SlotCount int `json:"slot_count"`

	// MaxAllocSize is the largest request that can be guarded. Each slot
	// gets enough pages to hold it. 0 means one page.
	// Default: 0
	MaxAllocSize uintptr `json:"max_alloc_size"`

	// PageSize must match the platform page size when set. 0 means use the
	// platform value.
	// Default: 0
	PageSize uintptr `json:"page_size,omitempty"`

	// UnderflowPercent is the share of allocations placed against the
	// leading guard page; the rest are placed against the trailing one.
	// Default: 50
	UnderflowPercent int `json:"underflow_percent"`

	// Seed makes slot selection reproducible when non-zero.
	// Default: 0 (random)
	Seed uint64 `json:"seed,omitempty"`
}

// DefaultConfig returns the recommended configuration for production use.
func DefaultConfig() Config {
	return Config{
		SampleRate:       1000,
		SlotCount:        64,
		UnderflowPercent: guard.DefaultUnderflowPercent,
	}
}

// Validate checks c for values the detector cannot honour.
func (c Config) Validate() error {
	if c.SlotCount <= 0 || c.SlotCount > MaxSlots {
		return fmt.Errorf("%w: slot_count %d outside 1..%d", ErrConfig, c.SlotCount, MaxSlots)
	}
	if c.UnderflowPercent < 0 || c.UnderflowPercent > 100 {
		return fmt.Errorf("%w: underflow_percent %d outside 0..100", ErrConfig, c.UnderflowPercent)
	}
	if c.PageSize != 0 && !align.IsPow2(c.PageSize) {
		return fmt.Errorf("%w: page_size %d is not a power of two", ErrConfig, c.PageSize)
	}
	if c.MaxAllocSize > 1<<30 {
		return fmt.Errorf("%w: max_alloc_size %d exceeds 1GiB", ErrConfig, c.MaxAllocSize)
	}
	return nil
}

// LoadConfig reads a JSON config file. Fields missing from the file keep
// their DefaultConfig values; unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gwp: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a JSON config over DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
