package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.True(t, cfg.Enabled)
	require.Equal(t, 30, cfg.TickRate)
	require.Equal(t, 10000.0, cfg.GridCellSize)
	require.Equal(t, 200.0, cfg.PVSCellSize)
	require.Equal(t, -600.0, cfg.PVSSpatialBiasX)
	require.True(t, cfg.DisableSpatialRebuilds)
	require.Equal(t, 2, cfg.PlayerStatesPerFrame)
	require.Equal(t, 30000.0, cfg.DestructionInfoMaxDist)
	require.Equal(t, "NotRouted", cfg.TypeOverrides["PlayerState"])
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := `
tickRate: 60
pvsCellSize: 400
disableSpatialRebuilds: false
typeOverrides:
  Pickup: Spatialize_Static
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 60, cfg.TickRate)
	require.Equal(t, 400.0, cfg.PVSCellSize)
	require.False(t, cfg.DisableSpatialRebuilds)
	require.Equal(t, "Spatialize_Static", cfg.TypeOverrides["Pickup"])
	// Untouched keys keep their defaults.
	require.Equal(t, 10000.0, cfg.GridCellSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero tick rate", "tickRate: 0"},
		{"negative grid cell", "gridCellSize: -5"},
		{"zero pvs cell", "pvsCellSize: 0"},
		{"zero player states", "playerStatesPerFrame: 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWithDestructionInfoMaxDistCopies(t *testing.T) {
	cfg := Default()
	updated := cfg.WithDestructionInfoMaxDist(12000)

	require.Equal(t, 12000.0, updated.DestructionInfoMaxDist)
	require.Equal(t, 30000.0, cfg.DestructionInfoMaxDist)
}
