package cache

import (
	"fmt"

	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/replacement"
)

// FullyAssociative implements the single-set, W-way variant (spec
// §4.2.c): any tag may live in any way, so there is exactly one
// replacement policy instance for the whole cache. It additionally
// reports occupancy, since "full"/"empty" only mean something when
// there is a single set to be full or empty.
type FullyAssociative struct {
	*store
	policy replacement.Policy
}

// FullyAssociativeConfig configures a FullyAssociative cache.
type FullyAssociativeConfig struct {
	// Ways is W, the number of entries.
	Ways int
	// NewPolicy constructs the single replacement.Policy instance; it
	// must report Ways() == Ways.
	NewPolicy replacement.Factory
}

// NewFullyAssociative constructs a fully-associative cache.
func NewFullyAssociative(cfg FullyAssociativeConfig) (*FullyAssociative, error) {
	if cfg.NewPolicy == nil {
		return nil, fmt.Errorf("cache: fully-associative cache requires a replacement policy factory")
	}
	st, err := newStore(1, cfg.Ways)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("cache: constructing replacement policy: %w", err)
	}
	if policy.Ways() != cfg.Ways {
		return nil, fmt.Errorf("cache: replacement policy ways %d does not match cache ways %d", policy.Ways(), cfg.Ways)
	}
	return &FullyAssociative{store: st, policy: policy}, nil
}

// Lines implements Cache. Always 1.
func (c *FullyAssociative) Lines() int { return 1 }

// Ways implements Cache.
func (c *FullyAssociative) Ways() int { return c.ways }

// SupportsFillRWIBypass implements Cache. Always false (spec's preserved
// hook: a same-cycle RWI and fill race is always resolved fill-wins,
// never bypassed, in this repository).
func (c *FullyAssociative) SupportsFillRWIBypass() bool { return false }

// Occupancy implements OccupancyReporter.
func (c *FullyAssociative) Occupancy() int {
	n := 0
	for way := 0; way < c.ways; way++ {
		if c.entries.Peek(way).Valid {
			n++
		}
	}
	return n
}

// Full implements OccupancyReporter.
func (c *FullyAssociative) Full() bool { return c.Occupancy() == c.ways }

// Empty implements OccupancyReporter.
func (c *FullyAssociative) Empty() bool { return c.Occupancy() == 0 }

// Step implements Cache. Every address maps to the single set (indexBits
// = 0, so splitAddr's tag is the whole address); only the way dimension
// is resolved, against the one shared policy instance. As in
// SetAssociative, every fill port is classified first and the resulting
// hits, invalidates, and allocs are folded into one Policy.Step call for
// the cycle, rather than one call per fill port.
func (c *FullyAssociative) Step(reads []ReadRequest, fills []FillRequest) ([]ReadResult, []EvictResult) {
	const indexBits = 0

	working := map[int]Entry{}
	get := func(way int) Entry {
		if e, ok := working[way]; ok {
			return e
		}
		return c.entries.Peek(way)
	}

	pending := c.pendingInvalidate
	c.pendingInvalidate = nil
	for _, way := range pending {
		e := get(way)
		e.Valid = false
		working[way] = e
	}

	evicts := make([]EvictResult, len(fills))

	var hits, invalidates []ports.AccessPort
	var allocFills []int
	allocTag := make([]ports.Tag, len(fills))

	for i, f := range fills {
		if !f.En {
			continue
		}
		tag, _ := splitAddr(f.Addr, indexBits)

		if f.Valid {
			way, isUpdate, needsPolicy := classifyAlloc(get, c.ways, tag)
			switch {
			case needsPolicy:
				allocFills = append(allocFills, i)
				allocTag[i] = tag
			case isUpdate:
				hits = append(hits, ports.AccessPort{Access: true, Way: way})
				working[way] = Entry{Valid: true, Tag: tag, Data: f.Data}
			default:
				working[way] = Entry{Valid: true, Tag: tag, Data: f.Data}
			}
		} else {
			for way := 0; way < c.ways; way++ {
				e := get(way)
				if e.Valid && e.Tag == tag {
					evicts[i] = EvictResult{Fired: true, Addr: f.Addr, Data: e.Data}
					working[way] = Entry{Valid: false}
					invalidates = append(invalidates, ports.AccessPort{Access: true, Way: way})
					break
				}
			}
		}
	}

	if len(hits) > 0 || len(invalidates) > 0 || len(allocFills) > 0 {
		allocs := make([]ports.AllocRequest, len(allocFills))
		for k := range allocs {
			allocs[k] = ports.AllocRequest{Access: true}
		}
		allocWays := c.policy.Step(hits, invalidates, allocs)
		for k, i := range allocFills {
			way := allocWays[k]
			if cur := get(way); cur.Valid {
				evicts[i] = EvictResult{
					Fired: true,
					Addr:  reconstructAddr(cur.Tag, 0, indexBits),
					Data:  cur.Data,
				}
			}
			working[way] = Entry{Valid: true, Tag: allocTag[i], Data: fills[i].Data}
		}
	}

	results := make([]ReadResult, len(reads))
	var newPending []int
	for i, r := range reads {
		if !r.En {
			continue
		}
		tag, _ := splitAddr(r.Addr, indexBits)
		for way := 0; way < c.ways; way++ {
			e := get(way)
			if e.Valid && e.Tag == tag {
				results[i] = ReadResult{Hit: true, Data: e.Data}
				if r.ReadWithInvalidate {
					newPending = append(newPending, way)
				}
				break
			}
		}
	}
	c.pendingInvalidate = newPending

	commitWorking(c.store, working)

	return results, evicts
}
