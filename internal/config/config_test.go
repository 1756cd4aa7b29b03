package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Default_Values(t *testing.T) {
	cfg := Default()
	require.Equal(t, ModeRooms, cfg.Mode)
	require.Equal(t, "0.0.0.0:4000", cfg.Net.Addr)
	require.Equal(t, 10, cfg.Tick.TPS)
	require.Equal(t, int32(32), cfg.Grid.AOIRadius)
	require.Equal(t, "scripts", cfg.Scripting.Dir)
	require.Equal(t, 5, cfg.Persistence.MaxSnapshots)
	require.Equal(t, uint64(1_000_000), cfg.Plugins.DefaultFuelLimit)
	require.NoError(t, cfg.Validate())
}

func Test_LoadReader_PartialOverride(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(`
mode: grid
tick:
  tps: 20
grid:
  width: 64
  height: 64
  aoi_radius: 8
`))
	require.NoError(t, err)
	require.Equal(t, ModeGrid, cfg.Mode)
	require.Equal(t, 20, cfg.Tick.TPS)
	require.Equal(t, int32(64), cfg.Grid.Width)
	require.Equal(t, int32(8), cfg.Grid.AOIRadius)
	// Untouched sections keep defaults.
	require.Equal(t, "0.0.0.0:4000", cfg.Net.Addr)
	require.Equal(t, "snapshots", cfg.Persistence.Dir)
}

func Test_LoadReader_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func Test_Validate_RejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = "hexagons"
	require.Error(t, cfg.Validate())
}

func Test_Validate_RejectsBadGrid(t *testing.T) {
	_, err := LoadReader(strings.NewReader(`
mode: grid
grid:
  width: 0
`))
	require.Error(t, err)
}

func Test_Load_MissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
