package repgraph

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Kungya/NebulaReplicationGraph/internal/settings"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testTypes builds a small hierarchy covering every routing outcome:
//
//	Actor (not replicated)
//	├── Character (category Character, hero path)
//	│   └── HeroCharacter
//	├── PlayerController (only relevant to owner)
//	├── PlayerState (always relevant)
//	├── Projectile (spatialized)
//	│   └── Rocket (same flags as Projectile)
//	└── GameState (always relevant)
func testTypes() *TypeTable {
	types := NewTypeTable()
	types.Register(TypeDescriptor{ID: "Actor"})
	types.Register(TypeDescriptor{
		ID: "Character", Parent: "Actor", Category: CategoryCharacter,
		Replicated: true, CullDistance: 15000, UpdateFrequency: 30,
	})
	types.Register(TypeDescriptor{
		ID: "HeroCharacter", Parent: "Character",
		Replicated: true, CullDistance: 15000, UpdateFrequency: 30,
	})
	types.Register(TypeDescriptor{
		ID: "PlayerController", Parent: "Actor", Category: CategoryPlayerController,
		Replicated: true, OnlyRelevantToOwner: true, UpdateFrequency: 30,
	})
	types.Register(TypeDescriptor{
		ID: "PlayerState", Parent: "Actor", Category: CategoryPlayerState,
		Replicated: true, AlwaysRelevant: true, UpdateFrequency: 10,
	})
	types.Register(TypeDescriptor{
		ID: "Projectile", Parent: "Actor",
		Replicated: true, CullDistance: 8000, UpdateFrequency: 30,
	})
	types.Register(TypeDescriptor{
		ID: "Rocket", Parent: "Projectile",
		Replicated: true, CullDistance: 8000, UpdateFrequency: 30,
	})
	types.Register(TypeDescriptor{
		ID: "GameState", Parent: "Actor",
		Replicated: true, AlwaysRelevant: true, UpdateFrequency: 10,
	})
	return types
}

func testSettings() *settings.Settings {
	cfg := settings.Default()
	cfg.DisableSpatialRebuilds = false
	return cfg
}

// testGraph wires a graph whose frequency limiter reads from the returned
// slice pointer, so tests can manage the player-state population directly.
func testGraph(cfg *settings.Settings) (*Graph, *[]*Entity) {
	playerStates := &[]*Entity{}
	source := func() []*Entity { return *playerStates }
	return New(cfg, testTypes(), DefaultTable(), source, testLogger()), playerStates
}

func gatherIDs(g *Graph, conn *Connection) []string {
	ids := make([]string, 0)
	for _, e := range g.GatherForConnection(conn) {
		ids = append(ids, e.ID)
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
