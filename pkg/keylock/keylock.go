// Package keylock provides striped per-key mutual exclusion. It serializes
// work for the same key while letting different keys proceed in parallel.
// No external dependencies - uses only standard library.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the default number of lock stripes. A power of two keeps
// the modulo cheap and spreads FNV hashes evenly.
const DefaultStripes = 128

// Striped is a fixed set of mutexes indexed by key hash. Two keys may share
// a stripe; that only costs unnecessary serialization, never lost updates.
type Striped struct {
	stripes []sync.Mutex
	mask    uint32
}

// New creates a striped lock with the given stripe count, rounded up to the
// next power of two. Non-positive counts fall back to DefaultStripes.
func New(stripes int) *Striped {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	n := 1
	for n < stripes {
		n <<= 1
	}
	return &Striped{
		stripes: make([]sync.Mutex, n),
		mask:    uint32(n - 1),
	}
}

// Lock acquires the stripe for key.
func (s *Striped) Lock(key string) {
	s.stripes[s.index(key)].Lock()
}

// Unlock releases the stripe for key.
func (s *Striped) Unlock(key string) {
	s.stripes[s.index(key)].Unlock()
}

// WithLock runs fn while holding the stripe for key.
func (s *Striped) WithLock(key string, fn func()) {
	s.Lock(key)
	defer s.Unlock(key)
	fn()
}

func (s *Striped) index(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() & s.mask
}
