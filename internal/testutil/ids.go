package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predictable identifiers "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// This enables deterministic test execution and golden trace comparison.
// Unlike eventlog.UUIDv7Generator, the same run always yields the same ids.
//
// Thread-safety: FixedIDGenerator is safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator. If prefix is empty, "id" is used.
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next identifier.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *FixedIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
