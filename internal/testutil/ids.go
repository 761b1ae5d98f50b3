package testutil

import (
	"fmt"
	"sync"
)

// DeterministicIDs hands out transaction ids in a fixed sequence so that
// stores built in tests record the same causes on every run.
//
// The ids keep the UUIDv7 layout: version nibble 7, variant 10xx.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicIDs struct {
	mu  sync.Mutex
	seq uint64
}

// NewDeterministicIDs creates a generator whose first id ends in 1.
func NewDeterministicIDs() *DeterministicIDs {
	return &DeterministicIDs{}
}

// Next returns the next id.
func (g *DeterministicIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("00000000-0000-7000-8000-%012x", g.seq)
}

// Count returns how many ids have been handed out.
func (g *DeterministicIDs) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence.
func (g *DeterministicIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
