package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachecore/ports"
)

// AkitaLRUSetAssociative is a set-associative cache variant whose tag
// and recency bookkeeping is delegated to the simulation framework's own
// mem/cache directory (DirectoryImpl + an LRU victim finder) instead of
// this module's regfile-backed store and replacement package. It exists
// alongside TreePLRU and Available to show the same Cache contract
// driving a third, framework-native replacement strategy.
type AkitaLRUSetAssociative struct {
	lines, ways int
	directory   *akitacache.DirectoryImpl
	data        []ports.DataWord

	pendingInvalidate []uint64
}

// AkitaLRUSetAssociativeConfig configures an AkitaLRUSetAssociative cache.
type AkitaLRUSetAssociativeConfig struct {
	Lines int
	Ways  int
}

// NewAkitaLRUSetAssociative constructs the adapter. Each cache address is
// treated as its own one-word block (block size 1), since this module's
// addresses are already line-granular.
func NewAkitaLRUSetAssociative(cfg AkitaLRUSetAssociativeConfig) (*AkitaLRUSetAssociative, error) {
	if cfg.Lines < 1 || cfg.Ways < 1 {
		return nil, fmt.Errorf("cache: akita-backed cache requires lines >= 1 and ways >= 1, got lines=%d ways=%d", cfg.Lines, cfg.Ways)
	}
	dir := akitacache.NewDirectory(cfg.Lines, cfg.Ways, 1, akitacache.NewLRUVictimFinder())
	return &AkitaLRUSetAssociative{
		lines:     cfg.Lines,
		ways:      cfg.Ways,
		directory: dir,
		data:      make([]ports.DataWord, cfg.Lines*cfg.Ways),
	}, nil
}

// Lines implements Cache.
func (c *AkitaLRUSetAssociative) Lines() int { return c.lines }

// Ways implements Cache.
func (c *AkitaLRUSetAssociative) Ways() int { return c.ways }

// SupportsFillRWIBypass implements Cache. Always false.
func (c *AkitaLRUSetAssociative) SupportsFillRWIBypass() bool { return false }

func (c *AkitaLRUSetAssociative) blockIndex(b *akitacache.Block) int {
	return b.SetID*c.ways + b.WayID
}

// Step implements Cache, translating each read/fill port into the
// directory's Lookup/Visit/FindVictim calls.
func (c *AkitaLRUSetAssociative) Step(reads []ReadRequest, fills []FillRequest) ([]ReadResult, []EvictResult) {
	pending := c.pendingInvalidate
	c.pendingInvalidate = nil
	for _, addr := range pending {
		if block := c.directory.Lookup(0, addr); block != nil && block.IsValid {
			block.IsValid = false
		}
	}

	evicts := make([]EvictResult, len(fills))
	for i, f := range fills {
		if !f.En {
			continue
		}
		blockAddr := uint64(f.Addr)

		if f.Valid {
			if block := c.directory.Lookup(0, blockAddr); block != nil && block.IsValid {
				c.data[c.blockIndex(block)] = f.Data
				c.directory.Visit(block)
				continue
			}
			victim := c.directory.FindVictim(blockAddr)
			if victim == nil {
				continue
			}
			if victim.IsValid {
				evicts[i] = EvictResult{
					Fired: true,
					Addr:  ports.Address(victim.Tag),
					Data:  c.data[c.blockIndex(victim)],
				}
			}
			victim.Tag = blockAddr
			victim.IsValid = true
			c.data[c.blockIndex(victim)] = f.Data
			c.directory.Visit(victim)
			continue
		}

		if block := c.directory.Lookup(0, blockAddr); block != nil && block.IsValid {
			evicts[i] = EvictResult{Fired: true, Addr: f.Addr, Data: c.data[c.blockIndex(block)]}
			block.IsValid = false
		}
	}

	results := make([]ReadResult, len(reads))
	var newPending []uint64
	for i, r := range reads {
		if !r.En {
			continue
		}
		block := c.directory.Lookup(0, uint64(r.Addr))
		if block == nil || !block.IsValid {
			continue
		}
		c.directory.Visit(block)
		results[i] = ReadResult{Hit: true, Data: c.data[c.blockIndex(block)]}
		if r.ReadWithInvalidate {
			newPending = append(newPending, uint64(r.Addr))
		}
	}
	c.pendingInvalidate = newPending

	return results, evicts
}
