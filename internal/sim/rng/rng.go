// Package rng provides the injectable random source used for spawn draws and steal outcomes.
package rng

import (
	"math/rand"
	"sync"
)

// Source is the randomness capability the engine depends on.
// Intn returns a uniform value in [0,n) and must be safe for concurrent use.
type Source interface {
	Intn(n int) int
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a goroutine-safe seeded source. The same seed yields the same sequence.
func New(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// Script replays fixed values (each taken modulo n) and then repeats the last one.
// It is meant for tests that need a specific outcome.
type Script struct {
	mu   sync.Mutex
	vals []int
	pos  int
}

func NewScript(vals ...int) *Script {
	return &Script{vals: vals}
}

func (s *Script) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[s.pos]
	if s.pos < len(s.vals)-1 {
		s.pos++
	}
	if v < 0 {
		v = -v
	}
	return v % n
}
