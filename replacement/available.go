package replacement

import (
	"fmt"

	"github.com/sarchlab/cachecore/ports"
)

// Available implements the "available-invalidated" policy (spec
// §4.3.b): it tracks per-way validity directly (rather than recency).
// alloc returns the lowest-indexed invalid way; hit ports are ignored;
// invalidate clears a way's valid bit. It never evicts a valid way
// (config.Validate rejects it for the three cache variants for exactly
// that reason), which is also what makes it the right policy for the
// cached request/response channel's CAM replacement (spec §4.3.b): the
// channel only ever needs "which slot is free," never eviction, for its
// pending-requests bookkeeping. cam.CAM owns an Available instance
// internally for exactly this (cam/cam.go's FreeIndex/Step).
type Available struct {
	ways  int
	valid []bool
}

// NewAvailable constructs an Available policy over the given number of
// ways, which must be at least 1 (unlike tree-PLRU, this policy does not
// require a power of two).
func NewAvailable(ways int) (*Available, error) {
	if ways < 1 {
		return nil, fmt.Errorf("replacement: available-invalidated requires ways >= 1, got %d", ways)
	}
	return &Available{
		ways:  ways,
		valid: make([]bool, ways),
	}, nil
}

// NewAvailableFactory returns a Factory that constructs a fresh
// Available instance per call.
func NewAvailableFactory(ways int) Factory {
	return func() (Policy, error) {
		return NewAvailable(ways)
	}
}

// Ways implements Policy.
func (p *Available) Ways() int {
	return p.ways
}

// Step implements Policy. Hits are accepted but have no effect on state.
// Invalidates clear a way's valid bit (folded first). Allocs are
// resolved in order, each claiming the lowest-indexed remaining invalid
// way and immediately marking it valid so later allocs in the same
// Step do not claim the same way; an alloc with no invalid way
// available returns -1.
func (p *Available) Step(hits, invalidates []ports.AccessPort, allocs []ports.AllocRequest) []int {
	local := make([]bool, len(p.valid))
	copy(local, p.valid)

	for _, inv := range invalidates {
		if inv.Access {
			local[inv.Way] = false
		}
	}

	allocWays := make([]int, len(allocs))
	for i, a := range allocs {
		if !a.Access {
			allocWays[i] = -1
			continue
		}
		way := -1
		for w := 0; w < p.ways; w++ {
			if !local[w] {
				way = w
				break
			}
		}
		allocWays[i] = way
		if way >= 0 {
			local[way] = true
		}
	}

	p.valid = local
	return allocWays
}

// MarkValid directly sets a way's valid bit, used by callers (such as
// cam.CAM) that allocate a way through a different path (e.g. an
// explicit CAM write) but still want the Available policy's free-way
// bookkeeping kept in sync.
func (p *Available) MarkValid(way int, valid bool) {
	p.valid[way] = valid
}

// Peek reports the way Step would allocate next (the lowest-indexed
// invalid way), without mutating any state. Used by callers that need
// to know whether a slot is free before deciding whether they will
// actually commit to allocating it this cycle (cam.CAM.FreeIndex).
func (p *Available) Peek() (way int, ok bool) {
	for w := 0; w < p.ways; w++ {
		if !p.valid[w] {
			return w, true
		}
	}
	return 0, false
}
