// Package testutil holds helpers shared by the guarded allocator's tests.
package testutil

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/gwpkit/internal/vmem"
)

// ErrInjected is returned by FakeMapper calls configured to fail.
var ErrInjected = errors.New("testutil: injected mapper failure")

// Protection is the simulated protection of one fake page.
type Protection uint8

const (
	ProtNone Protection = iota
	ProtReadWrite
)

// FakeMapper implements vmem.Mapper over ordinary Go memory. It never
// changes real page protection; it records what protection each page would
// have so tests can assert on it, and it can be told to fail.
type FakeMapper struct {
	mu sync.Mutex

	Page uintptr

	FailReserve   bool
	FailProtect   bool
	FailUnprotect bool
	FailRelease   bool
	// BeforeAccess, when set, runs at the start of every MarkAccessible
	// call, outside the fake's lock.
	BeforeAccess func(addr unsafe.Pointer, size uintptr)

	ReserveCalls  int
	ReleaseCalls  int
	AccessCalls   int
	InaccessCalls int

	buf  []byte
	base uintptr
	prot []Protection
}

var _ vmem.Mapper = (*FakeMapper)(nil)

// NewFakeMapper returns a fake with the given page size.
func NewFakeMapper(pageSize uintptr) *FakeMapper {
	return &FakeMapper{Page: pageSize}
}

func (f *FakeMapper) PageSize() uintptr { return f.Page }

func (f *FakeMapper) Reserve(size uintptr) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReserveCalls++
	if f.FailReserve {
		return nil, fmt.Errorf("%w: %w", vmem.ErrReserve, ErrInjected)
	}
	// over-allocate so the base can be page aligned
	f.buf = make([]byte, size+f.Page)
	start := unsafe.Pointer(&f.buf[0])
	pad := (f.Page - uintptr(start)%f.Page) % f.Page
	base := unsafe.Add(start, pad)
	f.base = uintptr(base)
	f.prot = make([]Protection, size/f.Page)
	return base, nil
}

func (f *FakeMapper) Release(base unsafe.Pointer, size uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReleaseCalls++
	if f.FailRelease {
		return fmt.Errorf("%w: %w", vmem.ErrRelease, ErrInjected)
	}
	f.buf = nil
	f.prot = nil
	return nil
}

func (f *FakeMapper) set(addr unsafe.Pointer, size uintptr, p Protection) {
	first := (uintptr(addr) - f.base) / f.Page
	for i := uintptr(0); i < size/f.Page; i++ {
		f.prot[first+i] = p
	}
}

func (f *FakeMapper) MarkAccessible(addr unsafe.Pointer, size uintptr) error {
	if f.BeforeAccess != nil {
		f.BeforeAccess(addr, size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccessCalls++
	if f.FailProtect {
		return fmt.Errorf("%w: %w", vmem.ErrProtect, ErrInjected)
	}
	f.set(addr, size, ProtReadWrite)
	return nil
}

func (f *FakeMapper) MarkInaccessible(addr unsafe.Pointer, size uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InaccessCalls++
	if f.FailUnprotect {
		return fmt.Errorf("%w: %w", vmem.ErrProtect, ErrInjected)
	}
	f.set(addr, size, ProtNone)
	return nil
}

// ProtectionAt returns the simulated protection of the page holding addr.
func (f *FakeMapper) ProtectionAt(addr uintptr) Protection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prot[(addr-f.base)/f.Page]
}
