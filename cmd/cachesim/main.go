// Command cachesim replays a trace of upstream memory requests against a
// configured cached request/response channel and reports hit/miss
// statistics. It stands in for a real downstream memory with a simple
// fixed-latency responder, so the channel's handshake and capacity
// behavior can be exercised and inspected without a full system model.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/sarchlab/cachecore/channel"
	"github.com/sarchlab/cachecore/config"
	"github.com/sarchlab/cachecore/ports"
)

var (
	configPath  = flag.String("config", "", "path to a channel configuration file (JSON or JSONC); defaults built in if omitted")
	tracePath   = flag.String("trace", "", "path to a JSON trace file: an array of {\"id\":N,\"addr\":N} requests, issued in order")
	reportPath  = flag.String("report", "", "path to write a JSON statistics report (written atomically); printed to stdout if omitted")
	downLatency = flag.Int("downstream-latency", 4, "cycles a miss takes to come back from the simulated downstream memory")
	maxCycles   = flag.Int("max-cycles", 100000, "safety bound on simulated cycles, to catch a trace that never drains")
	verbose     = flag.Bool("v", false, "print a line per cycle with the channel's handshake signals")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cachesim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.DefaultChannelConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if *tracePath == "" {
		return fmt.Errorf("a -trace file is required")
	}
	requests, err := loadTrace(*tracePath)
	if err != nil {
		return fmt.Errorf("loading trace: %w", err)
	}

	ch, err := channel.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("constructing channel: %w", err)
	}

	stats := replay(ch, requests, *downLatency, *maxCycles, *verbose)

	report, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing report: %w", err)
	}
	report = append(report, '\n')

	if *reportPath == "" {
		fmt.Print(string(report))
		return nil
	}
	if err := atomic.WriteFile(*reportPath, strings.NewReader(string(report))); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// traceRequest is one upstream request as recorded in a trace file.
type traceRequest struct {
	Id   ports.Id      `json:"id"`
	Addr ports.Address `json:"addr"`
}

func loadTrace(path string) ([]traceRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var requests []traceRequest
	if err := json.Unmarshal(raw, &requests); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return requests, nil
}

// Stats summarizes a completed replay.
type Stats struct {
	Cycles           int `json:"cycles"`
	RequestsIssued   int `json:"requests_issued"`
	RequestsAdmitted int `json:"requests_admitted"`
	CacheHits        int `json:"cache_hits"`
	CacheMisses      int `json:"cache_misses"`
	MaxCAMOccupancy  int `json:"max_cam_occupancy"`
	MaxRespQueueLen  int `json:"max_response_queue_len"`
}

// inFlight is a miss awaiting its simulated downstream response.
type inFlight struct {
	req        ports.RequestRecord
	readyCycle int
}

// replay drives ch one cycle at a time until every request in requests
// has both been admitted and had its response delivered, or maxCycles is
// reached. The simulated downstream memory always responds with
// Data == Addr after downLatency cycles, non-cacheable never set.
func replay(ch *channel.Channel, requests []traceRequest, downLatency, maxCycles int, verbose bool) Stats {
	var stats Stats
	stats.RequestsIssued = len(requests)

	nextReq := 0
	var pending *ports.RequestRecord // the request currently being offered upstream, if not yet admitted

	var downstream []inFlight
	var outstandingResp *ports.ResponseRecord
	delivered := 0

	for cycle := 0; cycle < maxCycles; cycle++ {
		if pending == nil && nextReq < len(requests) {
			r := ports.RequestRecord{Id: requests[nextReq].Id, Addr: requests[nextReq].Addr}
			pending = &r
		}

		in := channel.Input{UpstreamRespReady: true, DownstreamReqReady: true}
		if pending != nil {
			in.UpstreamReqValid = true
			in.UpstreamReq = *pending
		}

		var dueIdx = -1
		for i, f := range downstream {
			if f.readyCycle <= cycle {
				dueIdx = i
				break
			}
		}
		if dueIdx >= 0 && outstandingResp == nil {
			resp := ports.ResponseRecord{Id: downstream[dueIdx].req.Id, Data: ports.DataWord(downstream[dueIdx].req.Addr)}
			outstandingResp = &resp
		}
		if outstandingResp != nil {
			in.DownstreamRespValid = true
			in.DownstreamResp = *outstandingResp
		}

		out := ch.Step(in)

		if verbose {
			fmt.Printf("cycle %5d: up.ready=%v down.valid=%v resp.valid=%v cam=%d respq=%d\n",
				cycle, out.UpstreamReqReady, out.DownstreamReqValid, out.UpstreamRespValid,
				ch.CAMOccupancy(), ch.ResponseQueueLen())
		}

		if in.UpstreamReqValid && out.UpstreamReqReady {
			if out.DownstreamReqValid {
				stats.CacheMisses++
				downstream = append(downstream, inFlight{req: *pending, readyCycle: cycle + 1 + downLatency})
			} else {
				stats.CacheHits++
			}
			stats.RequestsAdmitted++
			nextReq++
			pending = nil
		}

		if in.DownstreamRespValid && out.DownstreamRespReady {
			if dueIdx >= 0 {
				downstream = append(downstream[:dueIdx], downstream[dueIdx+1:]...)
			}
			outstandingResp = nil
		}

		if out.UpstreamRespValid {
			delivered++
		}

		if occ := ch.CAMOccupancy(); occ > stats.MaxCAMOccupancy {
			stats.MaxCAMOccupancy = occ
		}
		if l := ch.ResponseQueueLen(); l > stats.MaxRespQueueLen {
			stats.MaxRespQueueLen = l
		}

		stats.Cycles = cycle + 1
		if nextReq >= len(requests) && pending == nil && delivered >= stats.RequestsAdmitted && len(downstream) == 0 && outstandingResp == nil {
			break
		}
	}

	return stats
}
