// Package channel implements the cached request/response channel (spec
// §4.5): a single upstream request port is served by a backing Cache,
// with misses tracked in a pending-requests CAM (tag = id, a companion
// register file holding the miss's address) while in flight downstream,
// and responses — whether an immediate cache hit or a downstream
// response arriving later — delivered to upstream through one ordered
// response FIFO so replies never overtake each other (invariant I4).
//
// This implementation supports exactly one upstream request port; see
// config.ChannelConfig.NumUpstreamPorts and DESIGN.md for why the
// multi-port case is accepted in configuration but not yet wired.
package channel

import (
	"fmt"

	"github.com/sarchlab/cachecore/cache"
	"github.com/sarchlab/cachecore/cam"
	"github.com/sarchlab/cachecore/config"
	"github.com/sarchlab/cachecore/fifo"
	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/regfile"
	"github.com/sarchlab/cachecore/replacement"
)

// Input is one cycle's combinational inputs to Channel.Step.
type Input struct {
	UpstreamReqValid  bool
	UpstreamReq       ports.RequestRecord
	UpstreamRespReady bool

	DownstreamRespValid bool
	DownstreamResp      ports.ResponseRecord
	DownstreamReqReady  bool

	CacheWriteValid bool
	CacheWrite      ports.CacheWriteRecord

	// ResetCache forces every read this cycle to report a miss and
	// suppresses any cache fill; the CAM and response FIFO are
	// unaffected, so in-flight traffic keeps draining normally.
	ResetCache bool
}

// Output is one cycle's combinational outputs from Channel.Step.
type Output struct {
	UpstreamReqReady bool

	UpstreamRespValid bool
	UpstreamResp      ports.ResponseRecord

	DownstreamReqValid  bool
	DownstreamReq       ports.RequestRecord
	DownstreamRespReady bool

	CacheWriteReady bool
}

// Channel ties a Cache, a pending-requests CAM, and a response FIFO
// together (spec design note "Express the channel as a composition of
// the above collaborators").
type Channel struct {
	cache cache.Cache

	// pendingCAM tracks in-flight misses, keyed by request id.
	pendingCAM *cam.CAM
	// pendingAddr holds the miss address for the CAM entry at the same
	// index (spec §4.5: "stored data = addr"), since cam.CAM itself only
	// carries {valid, tag} per spec §3's CamEntry.
	pendingAddr *regfile.File[ports.Address]

	resp *fifo.FIFO[ports.ResponseRecord]
}

// New constructs a Channel around an already-built Cache.
func New(c cache.Cache, camWays, respDepth int) (*Channel, error) {
	if c == nil {
		return nil, fmt.Errorf("channel: cache must not be nil")
	}
	pendingCAM, err := cam.New(camWays)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	pendingAddr, err := regfile.New[ports.Address](camWays)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	resp, err := fifo.New[ports.ResponseRecord](respDepth)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	return &Channel{cache: c, pendingCAM: pendingCAM, pendingAddr: pendingAddr, resp: resp}, nil
}

// NewFromConfig builds both the backing cache and the Channel from a
// validated config.ChannelConfig (the channel package is the one place
// that wires config onto cache/replacement, so config itself stays free
// of those imports).
func NewFromConfig(cfg *config.ChannelConfig) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}

	c, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}
	return New(c, cfg.CAMWays, cfg.RespDepth)
}

func buildCache(cfg *config.ChannelConfig) (cache.Cache, error) {
	switch cfg.Variant {
	case config.VariantDirectMapped:
		return cache.NewDirectMapped(cache.DirectMappedConfig{Lines: cfg.Lines})
	case config.VariantSetAssociative:
		if cfg.Replacement == config.PolicyAkitaLRU {
			return cache.NewAkitaLRUSetAssociative(cache.AkitaLRUSetAssociativeConfig{Lines: cfg.Lines, Ways: cfg.Ways})
		}
		factory, err := replacementFactory(cfg)
		if err != nil {
			return nil, err
		}
		return cache.NewSetAssociative(cache.SetAssociativeConfig{
			Lines: cfg.Lines, Ways: cfg.Ways, NewPolicy: factory,
		})
	case config.VariantFullyAssociative:
		if cfg.Replacement == config.PolicyAkitaLRU {
			return cache.NewAkitaLRUSetAssociative(cache.AkitaLRUSetAssociativeConfig{Lines: 1, Ways: cfg.Ways})
		}
		factory, err := replacementFactory(cfg)
		if err != nil {
			return nil, err
		}
		return cache.NewFullyAssociative(cache.FullyAssociativeConfig{Ways: cfg.Ways, NewPolicy: factory})
	default:
		return nil, fmt.Errorf("channel: unknown cache variant %q", cfg.Variant)
	}
}

func replacementFactory(cfg *config.ChannelConfig) (replacement.Factory, error) {
	switch cfg.Replacement {
	case config.PolicyTreePLRU:
		return replacement.NewTreePLRUFactory(cfg.Ways), nil
	case config.PolicyAkitaLRU:
		return nil, fmt.Errorf("channel: akita_lru replacement is only available through the dedicated akita-backed cache, not as a replacement.Factory")
	default:
		return nil, fmt.Errorf("channel: replacement policy %q cannot back a cache's eviction path", cfg.Replacement)
	}
}

// Step evaluates one clock edge.
func (ch *Channel) Step(in Input) Output {
	var out Output

	out.CacheWriteReady = true
	cwActive := in.CacheWriteValid

	downstreamRespReady := in.DownstreamRespValid && ch.resp.InReady() && !cwActive
	out.DownstreamRespReady = downstreamRespReady
	respFromDownFired := in.DownstreamRespValid && downstreamRespReady

	var fillAddr ports.Address
	var fillFromDown bool
	var lookup cam.LookupResult
	if respFromDownFired {
		lookup = ch.pendingCAM.Lookup(true, ports.Tag(in.DownstreamResp.Id), true)
		if lookup.Hit {
			fillAddr = ch.pendingAddr.Peek(lookup.Idx)
			fillFromDown = !in.DownstreamResp.NonCacheable
		}
	}

	fillReq := cache.FillRequest{}
	switch {
	case !in.ResetCache && cwActive:
		if in.CacheWrite.Invalidate {
			fillReq = cache.FillRequest{En: true, Valid: false, Addr: in.CacheWrite.Addr}
		} else {
			fillReq = cache.FillRequest{En: true, Valid: true, Addr: in.CacheWrite.Addr, Data: in.CacheWrite.Data}
		}
	case !in.ResetCache && fillFromDown:
		fillReq = cache.FillRequest{En: true, Valid: true, Addr: fillAddr, Data: in.DownstreamResp.Data}
	}

	reads := []cache.ReadRequest{{
		En:   in.UpstreamReqValid && !in.ResetCache,
		Addr: in.UpstreamReq.Addr,
	}}
	results, _ := ch.cache.Step(reads, []cache.FillRequest{fillReq})
	cacheHit := results[0].Hit

	freeIdx, camFree := ch.pendingCAM.FreeIndex()
	if !camFree && ch.cache.SupportsFillRWIBypass() && lookup.Hit {
		// The slot this cycle's response clears takes the new miss:
		// CAM.Step applies the clear before the write.
		freeIdx, camFree = lookup.Idx, true
	}

	upstreamReqReady := false
	if in.UpstreamReqValid {
		if cacheHit {
			upstreamReqReady = ch.resp.InReady() && !respFromDownFired
		} else {
			upstreamReqReady = camFree && in.DownstreamReqReady
		}
	}
	out.UpstreamReqReady = upstreamReqReady
	upstreamFired := in.UpstreamReqValid && upstreamReqReady

	out.DownstreamReqValid = upstreamFired && !cacheHit
	out.DownstreamReq = in.UpstreamReq

	camWrite := cam.WriteRequest{}
	if upstreamFired && !cacheHit {
		camWrite = cam.WriteRequest{En: true, Idx: freeIdx, Tag: ports.Tag(in.UpstreamReq.Id), SetValid: true}
		ch.pendingAddr.Step(nil, []regfile.WritePort[ports.Address]{{En: true, Addr: freeIdx, Data: in.UpstreamReq.Addr}})
	}
	ch.pendingCAM.Step(camWrite)

	pushValid := respFromDownFired || (upstreamFired && cacheHit)
	var pushData ports.ResponseRecord
	switch {
	case respFromDownFired:
		pushData = in.DownstreamResp
	case upstreamFired && cacheHit:
		pushData = ports.ResponseRecord{Id: in.UpstreamReq.Id, Data: results[0].Data}
	}

	var data ports.ResponseRecord
	switch {
	case ch.resp.OutValid():
		data = ch.resp.Peek()
	case pushValid:
		data = pushData
	}
	valid := ch.resp.OutValid() || pushValid
	pop := valid && in.UpstreamRespReady

	popped, popValid := ch.resp.Step(pushValid, pushData, pop)
	out.UpstreamRespValid = valid
	out.UpstreamResp = data
	if popValid {
		out.UpstreamResp = popped
	}

	return out
}

// CAMOccupancy reports how many pending-request CAM entries are
// currently in flight, primarily for tests and diagnostics (spec
// property P7's capacity bound).
func (ch *Channel) CAMOccupancy() int {
	return ch.pendingCAM.ValidCount()
}

// ResponseQueueLen reports how many responses are currently queued in
// the response FIFO, for tests and diagnostics.
func (ch *Channel) ResponseQueueLen() int {
	return ch.resp.Len()
}
