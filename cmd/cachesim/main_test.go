package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarchlab/cachecore/channel"
	"github.com/sarchlab/cachecore/config"
)

// TestReplaySmoke drives replay directly against a small trace: two
// distinct addresses (each a cold miss), then a repeat of the first
// (a hit), matching spec.md §8's seed scenario list. The downstream
// latency is 0, so the first miss's response fills the cache before the
// repeat is admitted; with a longer latency the repeat would be admitted
// while the first miss is still in flight and miss as well.
func TestReplaySmoke(t *testing.T) {
	requests := []traceRequest{
		{Id: 1, Addr: 0x10},
		{Id: 2, Addr: 0x20},
		{Id: 3, Addr: 0x10},
	}

	ch, err := channel.NewFromConfig(config.DefaultChannelConfig())
	require.NoError(t, err)

	stats := replay(ch, requests, 0, 1000, false)

	require.Equal(t, 3, stats.RequestsIssued)
	require.Equal(t, 3, stats.RequestsAdmitted)
	require.Equal(t, 2, stats.CacheMisses)
	require.Equal(t, 1, stats.CacheHits)
	require.Greater(t, stats.Cycles, 0)
	require.LessOrEqual(t, stats.MaxCAMOccupancy, config.DefaultChannelConfig().CAMWays)
}

// TestLoadTrace exercises loadTrace's file reading against a trace
// written to a temporary directory, without invoking main (which would
// call os.Exit on error and parse global flags).
func TestLoadTrace(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "trace.json")

	raw, err := json.Marshal([]traceRequest{
		{Id: 1, Addr: 0x1},
		{Id: 2, Addr: 0x2},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tracePath, raw, 0o644))

	loaded, err := loadTrace(tracePath)
	require.NoError(t, err)
	require.Equal(t, 2, len(loaded))
	require.Equal(t, traceRequest{Id: 1, Addr: 0x1}, loaded[0])
}
