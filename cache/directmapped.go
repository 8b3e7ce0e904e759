package cache

// DirectMapped implements the W=1 cache variant (spec §4.2.a): one way
// per line, no replacement policy. A fill-miss to a valid line always
// overrides the current entry, firing an eviction when the displaced
// tag differs from the incoming one.
type DirectMapped struct {
	*store
	indexBits int
}

// DirectMappedConfig configures a DirectMapped cache.
type DirectMappedConfig struct {
	// Lines is L, the number of addressable lines. Must be a power of two.
	Lines int
}

// NewDirectMapped constructs a direct-mapped cache.
func NewDirectMapped(cfg DirectMappedConfig) (*DirectMapped, error) {
	indexBits, err := indexBitsFor(cfg.Lines)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg.Lines, 1)
	if err != nil {
		return nil, err
	}
	return &DirectMapped{store: st, indexBits: indexBits}, nil
}

// Lines implements Cache.
func (c *DirectMapped) Lines() int { return c.lines }

// Ways implements Cache.
func (c *DirectMapped) Ways() int { return 1 }

// SupportsFillRWIBypass implements Cache. Always false (spec's preserved hook).
func (c *DirectMapped) SupportsFillRWIBypass() bool { return false }

// Step implements Cache.
func (c *DirectMapped) Step(reads []ReadRequest, fills []FillRequest) ([]ReadResult, []EvictResult) {
	working := map[int]Entry{}
	get := func(idx int) Entry {
		if e, ok := working[idx]; ok {
			return e
		}
		return c.entries.Peek(idx)
	}

	// Registered RWI clears apply unconditionally before fill resolution,
	// so a fill can reuse a way an in-flight invalidate just freed. A fill
	// that lands on the same way in the same cycle therefore sees it as
	// already invalid and reports no eviction witness for it — the RWI's
	// own clear is never itself witnessed (only fill-driven displacement
	// is, per invariant I6), so no information is lost.
	pending := c.pendingInvalidate
	c.pendingInvalidate = nil
	for _, idx := range pending {
		e := get(idx)
		e.Valid = false
		working[idx] = e
	}

	fillIdx := make([]int, len(fills))
	evicts := make([]EvictResult, len(fills))
	for i, f := range fills {
		fillIdx[i] = -1
		if !f.En {
			continue
		}
		tag, line := splitAddr(f.Addr, c.indexBits)
		idx := c.flatIndex(line, 0)
		fillIdx[i] = idx
		cur := get(idx)
		if f.Valid {
			if cur.Valid && cur.Tag != tag {
				evicts[i] = EvictResult{
					Fired: true,
					Addr:  reconstructAddr(cur.Tag, line, c.indexBits),
					Data:  cur.Data,
				}
			}
			working[idx] = Entry{Valid: true, Tag: tag, Data: f.Data}
		} else if cur.Valid && cur.Tag == tag {
			evicts[i] = EvictResult{Fired: true, Addr: f.Addr, Data: cur.Data}
			working[idx] = Entry{Valid: false}
		}
	}

	results := make([]ReadResult, len(reads))
	var newPending []int
	for i, r := range reads {
		if !r.En {
			continue
		}
		tag, line := splitAddr(r.Addr, c.indexBits)
		idx := c.flatIndex(line, 0)
		e := get(idx)
		hit := e.Valid && e.Tag == tag
		results[i] = ReadResult{Hit: hit, Data: e.Data}
		if hit && r.ReadWithInvalidate {
			newPending = append(newPending, idx)
		}
	}
	c.pendingInvalidate = newPending

	commitWorking(c.store, working)

	return results, evicts
}
