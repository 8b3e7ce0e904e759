// Package cam implements a content-addressable memory (spec §4.4): a
// fixed-size associative array of {valid, tag} entries with a
// combinational lookup port and a registered write port. The channel
// package's CAM additionally enables invalidate-on-lookup with a
// one-cycle-delayed clear, matching the registered-RWI semantics used
// throughout this repository. Slot allocation (FreeIndex) is resolved
// through an internal replacement.Available instance, the
// available-invalidated policy spec §4.3.b names for this exact
// purpose.
package cam

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/replacement"
)

// Entry is one CAM slot.
type Entry struct {
	Valid bool
	Tag   ports.Tag
}

// WriteRequest is a CAM write port's per-cycle input (spec §4.4's write
// port: {en, idx, tag, set_valid}).
type WriteRequest struct {
	En       bool
	Idx      int
	Tag      ports.Tag
	SetValid bool
}

// LookupResult is the combinational output of a lookup, plus whether an
// invalidate-on-hit was requested (used by the caller to know a
// registered clear is now pending).
type LookupResult struct {
	Hit              bool
	Idx              int
	InvalidateQueued bool
}

// CAM is a fixed-size, single-port-per-call content-addressable memory.
type CAM struct {
	entries []Entry

	// pendingClear holds indices whose valid bit must be cleared at the
	// start of the next Step, implementing the one-cycle-delayed
	// invalidate-on-lookup the channel's CAM relies on (spec §4.4).
	pendingClear []int

	// alloc is the available-invalidated replacement policy (spec
	// §4.3.b) used to track which slot FreeIndex should hand out next;
	// it mirrors entries' valid bits, kept in sync from Step.
	alloc *replacement.Available
}

// New constructs a CAM with the given number of entries, which must be
// at least 1.
func New(entries int) (*CAM, error) {
	if entries < 1 {
		return nil, fmt.Errorf("cam: entries must be >= 1, got %d", entries)
	}
	alloc, err := replacement.NewAvailable(entries)
	if err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	return &CAM{entries: make([]Entry, entries), alloc: alloc}, nil
}

// Entries returns the number of slots in the CAM.
func (c *CAM) Entries() int {
	return len(c.entries)
}

// Lookup performs a combinational associative search for tag and returns
// the smallest index of a valid entry whose tag matches. If
// invalidate is true and the lookup hits, the matched entry's clear is
// queued to take effect at the next Step (registered, one-cycle-delayed
// invalidate-on-lookup).
func (c *CAM) Lookup(en bool, tag ports.Tag, invalidate bool) LookupResult {
	if !en {
		return LookupResult{}
	}
	for i, e := range c.entries {
		if e.Valid && e.Tag == tag {
			if invalidate {
				c.pendingClear = append(c.pendingClear, i)
			}
			return LookupResult{Hit: true, Idx: i, InvalidateQueued: invalidate}
		}
	}
	return LookupResult{}
}

// Step applies the registered effects of one clock edge: any
// invalidate-on-lookup clears queued by the previous cycle's Lookup
// calls are applied first, then the write request (if enabled) is
// committed. Because invariant I3 guarantees the channel never writes a
// currently-valid tag in the same cycle its matching response clears it,
// a write and a pending clear never target the same index in
// conflicting ways; if they do coincide, the write wins (applied after
// the clear), matching normal register-write priority.
func (c *CAM) Step(write WriteRequest) {
	pending := c.pendingClear
	c.pendingClear = nil
	for _, idx := range pending {
		if idx >= 0 && idx < len(c.entries) {
			c.entries[idx].Valid = false
			c.alloc.MarkValid(idx, false)
		}
	}

	if write.En {
		c.entries[write.Idx] = Entry{Tag: write.Tag, Valid: write.SetValid}
		c.alloc.MarkValid(write.Idx, write.SetValid)
	}
}

// ValidCount returns the number of currently valid entries.
func (c *CAM) ValidCount() int {
	n := 0
	for _, e := range c.entries {
		if e.Valid {
			n++
		}
	}
	return n
}

// Full reports whether every entry is valid.
func (c *CAM) Full() bool {
	return c.ValidCount() == len(c.entries)
}

// Empty reports whether no entry is valid.
func (c *CAM) Empty() bool {
	return c.ValidCount() == 0
}

// FreeIndex returns the lowest index currently holding an invalid entry,
// resolved through the CAM's internal available-invalidated policy
// (spec §4.3.b), for callers (the channel package) that allocate CAM
// slots directly rather than through a cache's fill path. This is a
// peek, not a commit: the caller decides whether it will actually issue
// a write to this index, and the policy's bookkeeping is only updated
// from Step once that write (or a clear) actually happens.
func (c *CAM) FreeIndex() (idx int, ok bool) {
	return c.alloc.Peek()
}

// ValidTags returns a snapshot of currently valid tags, sorted by tag
// value (not by slot index), useful for diagnostics and tests.
func (c *CAM) ValidTags() []ports.Tag {
	tags := make([]ports.Tag, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Valid {
			tags = append(tags, e.Tag)
		}
	}
	slices.Sort(tags)
	return tags
}
