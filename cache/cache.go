// Package cache implements the three cache variants from spec §4.2:
// direct-mapped, set-associative, and fully-associative. All three
// share the same per-cycle contract: a single Step call evaluates every
// read and fill port's combinational behavior (including same-cycle
// write-forwarding, spec invariant I5) against the current state, then
// commits fills and any registered read-with-invalidate clears before
// returning.
package cache

import (
	"fmt"

	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/regfile"
)

// ReadRequest is one read port's per-cycle input.
type ReadRequest struct {
	En                 bool
	Addr               ports.Address
	ReadWithInvalidate bool
}

// ReadResult is one read port's combinational output.
type ReadResult struct {
	Hit  bool
	Data ports.DataWord
}

// FillRequest is one fill port's per-cycle input. En=1,Valid=1 allocates
// or updates the entry at Addr; En=1,Valid=0 invalidates it if present.
// ReadWithInvalidate is intentionally absent from this type: spec §4.1
// forbids it on a fill port, so it is made a compile-time
// impossibility rather than a runtime configuration error.
type FillRequest struct {
	En    bool
	Valid bool
	Addr  ports.Address
	Data  ports.DataWord
}

// EvictResult is the eviction witness (spec invariant I6) produced by
// the fill request at the same slice index. Fired is true exactly when
// that fill displaced or cleared a previously valid entry.
type EvictResult struct {
	Fired bool
	Addr  ports.Address
	Data  ports.DataWord
}

// Entry is one (set, way) slot: {valid, tag, data} (spec §3's
// CacheEntry).
type Entry struct {
	Valid bool
	Tag   ports.Tag
	Data  ports.DataWord
}

// Cache is the common contract implemented by DirectMapped,
// SetAssociative, and FullyAssociative (spec design note: "Express as a
// Cache trait/interface with three concrete implementations").
type Cache interface {
	// Step evaluates one clock edge for every read and fill port given,
	// and returns read results (same order/length as reads) and evict
	// results (same order/length as fills).
	Step(reads []ReadRequest, fills []FillRequest) ([]ReadResult, []EvictResult)

	// Lines returns L, the number of sets (1 for fully-associative).
	Lines() int
	// Ways returns W, the associativity.
	Ways() int
	// SupportsFillRWIBypass reports whether a same-cycle fill can be
	// accepted into a way an in-flight RWI is about to free. Always
	// false in this repository (spec's preserved-but-unused hook).
	SupportsFillRWIBypass() bool
}

// OccupancyReporter is implemented by cache variants that can report
// occupancy (spec §4.2.c: fully-associative only).
type OccupancyReporter interface {
	Occupancy() int
	Full() bool
	Empty() bool
}

// Factory constructs a Cache; spec design note 9's CacheFactory, used by
// the channel package to stay agnostic to which variant it drives.
type Factory func() (Cache, error)

// splitAddr divides addr into (tag, line) given the number of
// index bits used to select a set.
func splitAddr(addr ports.Address, indexBits int) (tag ports.Tag, line int) {
	if indexBits == 0 {
		return ports.Tag(addr), 0
	}
	mask := (uint64(1) << uint(indexBits)) - 1
	line = int(uint64(addr) & mask)
	tag = ports.Tag(uint64(addr) >> uint(indexBits))
	return tag, line
}

// reconstructAddr rebuilds an address from a tag and line, the inverse
// of splitAddr (spec §4.2.a's reconstruct_addr).
func reconstructAddr(tag ports.Tag, line int, indexBits int) ports.Address {
	return ports.Address(uint64(tag)<<uint(indexBits) | uint64(line))
}

// indexBitsFor returns log2(n) for a power-of-two n, or an error.
func indexBitsFor(n int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("cache: line/way count must be >= 1, got %d", n)
	}
	bits := 0
	for v := n; v > 1; v >>= 1 {
		if v&1 != 0 {
			return 0, fmt.Errorf("cache: line/way count must be a power of two, got %d", n)
		}
		bits++
	}
	return bits, nil
}

// store is the shared tag/valid/data array plus registered-RWI
// bookkeeping used by all three variants; a flat index identifies a
// (line, way) slot as line*ways+way.
type store struct {
	ways  int
	lines int

	entries *regfile.File[Entry]

	// pendingInvalidate holds flat indices whose valid bit must be
	// cleared at the start of the next Step (registered RWI, spec
	// §4.2.c, applied uniformly to all three variants per SPEC_FULL.md).
	pendingInvalidate []int
}

func newStore(lines, ways int) (*store, error) {
	rf, err := regfile.New[Entry](lines * ways)
	if err != nil {
		return nil, err
	}
	return &store{ways: ways, lines: lines, entries: rf}, nil
}

func (s *store) flatIndex(line, way int) int {
	return line*s.ways + way
}

// commitWorking flushes a (possibly empty) overlay of resolved entries
// to the backing register file in one Step call. Each variant's Step
// builds this overlay combinationally (pending RWI clears, then fills
// in port order) before calling this once at the end.
func commitWorking(s *store, working map[int]Entry) {
	if len(working) == 0 {
		return
	}
	writes := make([]regfile.WritePort[Entry], 0, len(working))
	for idx, e := range working {
		writes = append(writes, regfile.WritePort[Entry]{En: true, Addr: idx, Data: e})
	}
	s.entries.Step(nil, writes)
}

// classifyAlloc implements invariant I2: a fill that matches an existing
// valid entry's tag is an update, not an allocation; failing that, an
// invalid way must be chosen before the replacement policy is ever
// consulted. needsPolicy is true exactly when every way in the set is
// already valid and a genuine victim must be chosen — callers collect
// every such fill across a cycle's ports and resolve them together in a
// single batched Policy.Step call (spec §4's hits-then-invalidates-then-
// allocs fold), rather than asking the policy port-by-port.
func classifyAlloc(get func(way int) Entry, ways int, tag ports.Tag) (way int, isUpdate, needsPolicy bool) {
	for w := 0; w < ways; w++ {
		if e := get(w); e.Valid && e.Tag == tag {
			return w, true, false
		}
	}
	for w := 0; w < ways; w++ {
		if !get(w).Valid {
			return w, false, false
		}
	}
	return -1, false, true
}
