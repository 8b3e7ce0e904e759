package replacement

import (
	"fmt"

	"github.com/sarchlab/cachecore/ports"
)

// TreePLRU implements the standard binary-tree pseudo-LRU policy
// (spec §4.3.a): one direction bit per internal node of a perfect
// binary tree over Ways leaves. A hit or alloc to a leaf flips the bits
// on the root-to-leaf path to point away from that leaf; an alloc
// descends from the root following the current bits to pick a victim;
// an invalidate points the path *toward* the invalidated leaf so it
// becomes the next victim.
type TreePLRU struct {
	ways int
	// bits holds one direction bit per internal node of a perfect binary
	// tree over `ways` leaves, stored as a 0-indexed array: the root is
	// node 0, and node n's children are 2n+1 (covering the lower half of
	// n's leaf range) and 2n+2 (the upper half). bits[n]=false means
	// "victim is in the left/lower subtree"; true means the right/upper
	// subtree. len(bits) == ways-1.
	bits []bool
}

// NewTreePLRU constructs a tree-PLRU policy over the given number of
// ways, which must be a power of two and at least 2.
func NewTreePLRU(ways int) (*TreePLRU, error) {
	if ways < 2 {
		return nil, fmt.Errorf("replacement: tree-PLRU requires ways >= 2, got %d", ways)
	}
	if !isPowerOfTwo(ways) {
		return nil, fmt.Errorf("replacement: tree-PLRU requires ways to be a power of two, got %d", ways)
	}
	return &TreePLRU{
		ways: ways,
		bits: make([]bool, ways-1),
	}, nil
}

// NewTreePLRUFactory returns a Factory that constructs a fresh TreePLRU
// instance per call, for use as one replacement-policy instance per
// cache line.
func NewTreePLRUFactory(ways int) Factory {
	return func() (Policy, error) {
		return NewTreePLRU(ways)
	}
}

// Ways implements Policy.
func (p *TreePLRU) Ways() int {
	return p.ways
}

// touch flips the direction bits along the root-to-leaf path for way so
// they point away from it (most-recently-used), unless towardLeaf is
// set, in which case the bits are pointed at way instead (making it the
// next victim).
func touch(bits []bool, ways, way int, towardLeaf bool) {
	node := 0
	lo, hi := 0, ways-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		goRight := way > mid
		if towardLeaf {
			bits[node] = goRight
		} else {
			bits[node] = !goRight
		}
		if goRight {
			lo = mid + 1
			node = 2*node + 2
		} else {
			hi = mid
			node = 2*node + 1
		}
	}
}

// victim descends from the root following the current bits to pick a way.
func victim(bits []bool, ways int) int {
	node := 0
	lo, hi := 0, ways-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if bits[node] {
			lo = mid + 1
			node = 2*node + 2
		} else {
			hi = mid
			node = 2*node + 1
		}
	}
	return lo
}

// Step implements Policy.
func (p *TreePLRU) Step(hits, invalidates []ports.AccessPort, allocs []ports.AllocRequest) []int {
	local := make([]bool, len(p.bits))
	copy(local, p.bits)

	for _, h := range hits {
		if h.Access {
			touch(local, p.ways, h.Way, false)
		}
	}
	for _, inv := range invalidates {
		if inv.Access {
			touch(local, p.ways, inv.Way, true)
		}
	}

	allocWays := make([]int, len(allocs))
	for i, a := range allocs {
		if !a.Access {
			allocWays[i] = -1
			continue
		}
		way := victim(local, p.ways)
		allocWays[i] = way
		touch(local, p.ways, way, false)
	}

	p.bits = local
	return allocWays
}
