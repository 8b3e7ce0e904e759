// Package replacement implements pluggable cache replacement policies:
// tree pseudo-LRU and an "available-invalidated" policy used by the
// cached request/response channel's CAM. A Policy instance owns the
// state for exactly one set; a set-associative cache constructs one
// instance per line via a Factory.
package replacement

import "github.com/sarchlab/cachecore/ports"

// Policy is the per-set replacement-policy contract (spec §4.3).
//
// Step resolves one cycle's worth of hit, invalidate, and allocation
// ports against the policy's current state and commits the result
// atomically: ports are folded in the fixed order hits, then
// invalidates, then allocs, each stage operating on a local copy of the
// state that is visible to the next stage (so an alloc sees the effect
// of this cycle's hits and invalidates, and each alloc after the first
// sees the previous allocs' claims). Only the final state is retained
// once Step returns.
//
// allocWays[i] is the way chosen for allocs[i]; entries for allocs with
// Access=false are left as -1.
type Policy interface {
	// Ways returns the number of ways this policy instance manages.
	Ways() int

	// Step applies hits and invalidates, then resolves allocs in order.
	Step(hits, invalidates []ports.AccessPort, allocs []ports.AllocRequest) (allocWays []int)
}

// Factory constructs a fresh Policy instance, one per cache line/set.
type Factory func() (Policy, error)

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
