package gwp

import (
	"log/slog"
	"unsafe"

	"github.com/joshuapare/gwpkit/gwp/fallback"
	"github.com/joshuapare/gwpkit/internal/logger"
	"github.com/joshuapare/gwpkit/internal/vmem"
)

// Allocator is the fallback allocator contract. Implementations must be
// safe for concurrent use.
type Allocator interface {
	Allocate(size, alignment uintptr) unsafe.Pointer
	Deallocate(p unsafe.Pointer)
}

// Mapper is the page-mapping backend. It is an alias so hosts can supply
// their own platform implementation.
type Mapper = vmem.Mapper

// Options wires the collaborators a Detector needs.
type Options struct {
	// Fallback serves every request the guarded path does not take.
	// Default: a fallback.Heap
	Fallback Allocator

	// Mapper reserves and protects the guarded region.
	// Default: the platform mapper
	Mapper Mapper

	// Logger receives lifecycle events and violations. Nothing is logged on
	// the allocation hot path.
	// Default: the package logger (discards unless initialised)
	Logger *slog.Logger

	// OnFatal is told about a failed protection change before the detector
	// panics.
	// Default: nil
	OnFatal func(error)

	// OnViolation receives double and invalid frees. The default panics
	// with the *ViolationError. A hook that returns leaves slot bookkeeping
	// untouched and lets Free report the pointer as handled.
	// Default: panic
	OnViolation func(*ViolationError)
}

// DefaultOptions returns options with every collaborator set to its default.
func DefaultOptions() *Options {
	return &Options{
		Fallback:    fallback.NewHeap(),
		Mapper:      vmem.New(),
		Logger:      logger.L,
		OnViolation: func(v *ViolationError) { panic(v) },
	}
}

// withDefaults fills the nil fields of o.
func (o *Options) withDefaults() Options {
	def := DefaultOptions()
	if o == nil {
		return *def
	}
	out := *o
	if out.Fallback == nil {
		out.Fallback = def.Fallback
	}
	if out.Mapper == nil {
		out.Mapper = def.Mapper
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.OnViolation == nil {
		out.OnViolation = def.OnViolation
	}
	return out
}
