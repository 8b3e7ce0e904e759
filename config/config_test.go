package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarchlab/cachecore/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, config.DefaultChannelConfig().Validate())
}

func TestValidateRejectsRespDepthBelowCAMWays(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.CAMWays = 32
	cfg.RespDepth = 8
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPowerOfTwoLinesForSetAssociative(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Lines = 3
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsDirectMappedWithExtraWays(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Variant = config.VariantDirectMapped
	cfg.Ways = 4
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsTreePLRUWithNonPowerOfTwoWays(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Ways = 3
	cfg.Replacement = config.PolicyTreePLRU
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAvailablePolicyForACacheVariant(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Replacement = config.PolicyAvailable
	require.Error(t, cfg.Validate())
}

func TestValidateAllowsAkitaLRUWithOddWays(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Ways = 3
	cfg.Replacement = config.PolicyAkitaLRU
	require.NoError(t, cfg.Validate())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := config.DefaultChannelConfig()
	cfg.Lines = 128
	cfg.CAMWays = 8

	path := filepath.Join(t.TempDir(), "channel.json")
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel.jsonc")
	contents := `{
		// cam_ways exceeds resp_depth, which should fail validation
		"cam_ways": 64,
		"resp_depth": 4,
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
