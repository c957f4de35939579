// Package settings holds the replication graph configuration: an immutable
// struct built once at startup and passed by reference into every
// component. Runtime tuning goes through the graph's reconfigure entry
// point, never through mutation of a shared instance.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the full configuration surface of the engine. Distances are
// world units, frequencies are per second.
type Settings struct {
	// Enabled gates graph construction in the server bootstrap.
	Enabled bool `yaml:"enabled"`

	TickRate int `yaml:"tickRate"`

	// Distance-based spatialization grid.
	GridCellSize     float64 `yaml:"gridCellSize"`
	GridSpatialBiasX float64 `yaml:"gridSpatialBiasX"`
	GridSpatialBiasY float64 `yaml:"gridSpatialBiasY"`

	// Precomputed-visibility grid. The bias maps negative world
	// coordinates to non-negative cell indices.
	PVSCellSize     float64 `yaml:"pvsCellSize"`
	PVSSpatialBiasX float64 `yaml:"pvsSpatialBiasX"`
	PVSSpatialBiasY float64 `yaml:"pvsSpatialBiasY"`

	// Path to a designer-authored visibility table; empty uses the
	// built-in test table.
	PVSTablePath string `yaml:"pvsTablePath"`

	// DisableSpatialRebuilds keeps dynamic grid entities in their insertion
	// cell, trading staleness for prepare-pass CPU.
	DisableSpatialRebuilds bool `yaml:"disableSpatialRebuilds"`

	// How many buckets dynamic spatialized entities spread across. More
	// buckets means a lower effective replication frequency.
	DynamicFrequencyBuckets int `yaml:"dynamicFrequencyBuckets"`

	// How many player states the frequency limiter returns per frame.
	PlayerStatesPerFrame int `yaml:"playerStatesPerFrame"`

	// Max distance (not squared) at which clients are told about destroyed
	// entities.
	DestructionInfoMaxDist float64 `yaml:"destructionInfoMaxDist"`

	// TypeOverrides pins entity types to routing policies by name.
	TypeOverrides map[string]string `yaml:"typeOverrides"`
}

// Default mirrors the tuning the engine shipped with.
func Default() *Settings {
	return &Settings{
		Enabled:                 true,
		TickRate:                30,
		GridCellSize:            10000,
		GridSpatialBiasX:        -150000,
		GridSpatialBiasY:        -200000,
		PVSCellSize:             200,
		PVSSpatialBiasX:         -600,
		PVSSpatialBiasY:         -600,
		DisableSpatialRebuilds:  true,
		DynamicFrequencyBuckets: 3,
		PlayerStatesPerFrame:    2,
		DestructionInfoMaxDist:  30000,
		// Player states replicate through the frequency limiter and the
		// per-connection node, never through the always-relevant list.
		TypeOverrides: map[string]string{
			"PlayerState": "NotRouted",
		},
	}
}

// Load reads a YAML settings file over the defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Settings) Validate() error {
	if s.TickRate <= 0 {
		return fmt.Errorf("tickRate must be positive, got %d", s.TickRate)
	}
	if s.GridCellSize <= 0 {
		return fmt.Errorf("gridCellSize must be positive, got %g", s.GridCellSize)
	}
	if s.PVSCellSize <= 0 {
		return fmt.Errorf("pvsCellSize must be positive, got %g", s.PVSCellSize)
	}
	if s.PlayerStatesPerFrame <= 0 {
		return fmt.Errorf("playerStatesPerFrame must be positive, got %d", s.PlayerStatesPerFrame)
	}
	return nil
}

// WithDestructionInfoMaxDist returns a copy with the distance replaced,
// keeping the original immutable for other holders.
func (s *Settings) WithDestructionInfoMaxDist(dist float64) *Settings {
	copied := *s
	copied.DestructionInfoMaxDist = dist
	return &copied
}
