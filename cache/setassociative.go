package cache

import (
	"fmt"

	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/replacement"
)

// SetAssociative implements the W-way-per-line variant (spec §4.2.b): a
// parallel tag compare across the ways of one line, with a dedicated
// replacement policy instance per line choosing the victim when every
// way in a set is already valid.
type SetAssociative struct {
	*store
	indexBits int
	policies  []replacement.Policy
}

// SetAssociativeConfig configures a SetAssociative cache.
type SetAssociativeConfig struct {
	// Lines is L, the number of sets. Must be a power of two.
	Lines int
	// Ways is W, the associativity.
	Ways int
	// NewPolicy constructs one replacement.Policy instance per set; each
	// must report Ways() == Ways.
	NewPolicy replacement.Factory
}

// NewSetAssociative constructs a set-associative cache.
func NewSetAssociative(cfg SetAssociativeConfig) (*SetAssociative, error) {
	indexBits, err := indexBitsFor(cfg.Lines)
	if err != nil {
		return nil, err
	}
	if cfg.NewPolicy == nil {
		return nil, fmt.Errorf("cache: set-associative cache requires a replacement policy factory")
	}
	st, err := newStore(cfg.Lines, cfg.Ways)
	if err != nil {
		return nil, err
	}
	policies := make([]replacement.Policy, cfg.Lines)
	for i := range policies {
		p, err := cfg.NewPolicy()
		if err != nil {
			return nil, fmt.Errorf("cache: constructing replacement policy for set %d: %w", i, err)
		}
		if p.Ways() != cfg.Ways {
			return nil, fmt.Errorf("cache: replacement policy ways %d does not match cache ways %d", p.Ways(), cfg.Ways)
		}
		policies[i] = p
	}
	return &SetAssociative{store: st, indexBits: indexBits, policies: policies}, nil
}

// Lines implements Cache.
func (c *SetAssociative) Lines() int { return c.lines }

// Ways implements Cache.
func (c *SetAssociative) Ways() int { return c.ways }

// SupportsFillRWIBypass implements Cache. Always false (spec's preserved hook).
func (c *SetAssociative) SupportsFillRWIBypass() bool { return false }

// Step implements Cache. Every fill port's effect on the line it targets
// is classified first (update, free-way allocation, or a victim-needing
// allocation); all hits, invalidates, and allocs a cycle's fill ports
// contribute to a given line are then folded into that line's policy in
// one Policy.Step call, matching the interface's documented per-cycle
// fold contract (hits, then invalidates, then allocs) instead of calling
// Step once per fill port.
func (c *SetAssociative) Step(reads []ReadRequest, fills []FillRequest) ([]ReadResult, []EvictResult) {
	working := map[int]Entry{}
	get := func(idx int) Entry {
		if e, ok := working[idx]; ok {
			return e
		}
		return c.entries.Peek(idx)
	}

	// Registered RWI clears apply unconditionally first; see DirectMapped
	// for why a same-cycle fill landing on the freed way reports no
	// eviction witness for it.
	pending := c.pendingInvalidate
	c.pendingInvalidate = nil
	for _, idx := range pending {
		e := get(idx)
		e.Valid = false
		working[idx] = e
	}

	evicts := make([]EvictResult, len(fills))

	type lineFold struct {
		hits, invalidates []ports.AccessPort
		allocFills        []int
	}
	folds := map[int]*lineFold{}
	foldFor := func(line int) *lineFold {
		f, ok := folds[line]
		if !ok {
			f = &lineFold{}
			folds[line] = f
		}
		return f
	}
	allocTag := make([]ports.Tag, len(fills))

	for i, f := range fills {
		if !f.En {
			continue
		}
		tag, line := splitAddr(f.Addr, c.indexBits)
		getWay := func(way int) Entry { return get(c.flatIndex(line, way)) }
		fold := foldFor(line)

		if f.Valid {
			way, isUpdate, needsPolicy := classifyAlloc(getWay, c.ways, tag)
			switch {
			case needsPolicy:
				fold.allocFills = append(fold.allocFills, i)
				allocTag[i] = tag
			case isUpdate:
				fold.hits = append(fold.hits, ports.AccessPort{Access: true, Way: way})
				working[c.flatIndex(line, way)] = Entry{Valid: true, Tag: tag, Data: f.Data}
			default:
				working[c.flatIndex(line, way)] = Entry{Valid: true, Tag: tag, Data: f.Data}
			}
		} else {
			for way := 0; way < c.ways; way++ {
				e := getWay(way)
				if e.Valid && e.Tag == tag {
					idx := c.flatIndex(line, way)
					evicts[i] = EvictResult{Fired: true, Addr: f.Addr, Data: e.Data}
					working[idx] = Entry{Valid: false}
					fold.invalidates = append(fold.invalidates, ports.AccessPort{Access: true, Way: way})
					break
				}
			}
		}
	}

	for line, fold := range folds {
		if len(fold.hits) == 0 && len(fold.invalidates) == 0 && len(fold.allocFills) == 0 {
			continue
		}
		allocs := make([]ports.AllocRequest, len(fold.allocFills))
		for k := range allocs {
			allocs[k] = ports.AllocRequest{Access: true}
		}
		allocWays := c.policies[line].Step(fold.hits, fold.invalidates, allocs)
		for k, i := range fold.allocFills {
			way := allocWays[k]
			idx := c.flatIndex(line, way)
			if cur := get(idx); cur.Valid {
				evicts[i] = EvictResult{
					Fired: true,
					Addr:  reconstructAddr(cur.Tag, line, c.indexBits),
					Data:  cur.Data,
				}
			}
			working[idx] = Entry{Valid: true, Tag: allocTag[i], Data: fills[i].Data}
		}
	}

	results := make([]ReadResult, len(reads))
	var newPending []int
	for i, r := range reads {
		if !r.En {
			continue
		}
		tag, line := splitAddr(r.Addr, c.indexBits)
		for way := 0; way < c.ways; way++ {
			idx := c.flatIndex(line, way)
			e := get(idx)
			if e.Valid && e.Tag == tag {
				results[i] = ReadResult{Hit: true, Data: e.Data}
				if r.ReadWithInvalidate {
					newPending = append(newPending, idx)
				}
				break
			}
		}
	}
	c.pendingInvalidate = newPending

	commitWorking(c.store, working)

	return results, evicts
}
