package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/edgeid/internal/identity"
)

// SequentialIDGenerator generates event IDs "<prefix>-1", "<prefix>-2", ...
//
// The same scenario with the same generator produces byte-identical event
// logs, which keeps golden snapshots stable.
//
// Thread-safety: SequentialIDGenerator is safe for concurrent use.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates an event ID generator.
// If prefix is empty, "ev" is used.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "ev"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID. Implements engine.IDGenerator.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedECIDGenerator returns predetermined ECIDs in order. Once they are
// used up it continues with counter ECIDs (38 zero-padded digits: ...001,
// ...002) instead of failing, so long scenarios need not list every reset.
//
// Thread-safety: FixedECIDGenerator is safe for concurrent use.
type FixedECIDGenerator struct {
	mu      sync.Mutex
	ids     []string
	idx     int
	counter int
}

// NewFixedECIDGenerator creates a generator returning ids first.
func NewFixedECIDGenerator(ids ...string) *FixedECIDGenerator {
	return &FixedECIDGenerator{ids: ids}
}

// NewECID implements identity.Generator.
func (g *FixedECIDGenerator) NewECID() identity.ECID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return identity.ParseECID(id)
	}
	g.counter++
	return identity.ParseECID(fmt.Sprintf("%038d", g.counter))
}
