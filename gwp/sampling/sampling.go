// Package sampling decides which allocation requests take the guarded path.
//
// The decision is a single draw from the runtime's per-thread generator:
// it takes no lock, never looks at the request size or call site, and so
// cannot bias which allocations get guarded.
package sampling

import (
	"math/rand/v2"
	"sync/atomic"
)

// Sampler selects one request in Rate.
type Sampler struct {
	rate uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a sampler for a 1-in-rate probability. Rate 0 disables
// sampling and rate 1 guards every request.
func New(rate uint64) *Sampler {
	return &Sampler{rate: rate}
}

// Rate returns K in "1 in K".
func (s *Sampler) Rate() uint64 { return s.rate }

// Sample reports whether the current request should be guarded.
func (s *Sampler) Sample() bool {
	var hit bool
	switch s.rate {
	case 0:
		hit = false
	case 1:
		hit = true
	default:
		hit = rand.Uint64N(s.rate) == 0
	}
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return hit
}

// Counts returns how many requests were sampled in and out.
func (s *Sampler) Counts() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}
