// Package world is the minimal simulation backing the demo server: an
// insertion-ordered entity registry plus a wander mover that makes
// positions change so cell migrations actually happen. The replication
// graph only ever sees *repgraph.Entity references owned here.
package world

import (
	"math"
	"math/rand"

	"github.com/Kungya/NebulaReplicationGraph/internal/repgraph"
)

// Demo type hierarchy. Categories replace runtime type tests in the graph.
const (
	TypeActor            repgraph.TypeID = "Actor"
	TypeCharacter        repgraph.TypeID = "Character"
	TypeHeroCharacter    repgraph.TypeID = "HeroCharacter"
	TypePlayerController repgraph.TypeID = "PlayerController"
	TypePlayerState      repgraph.TypeID = "PlayerState"
	TypeProjectile       repgraph.TypeID = "Projectile"
	TypePickup           repgraph.TypeID = "Pickup"
	TypeGameState        repgraph.TypeID = "GameState"
)

// DefaultTypes registers the demo hierarchy.
func DefaultTypes() *repgraph.TypeTable {
	types := repgraph.NewTypeTable()
	types.Register(repgraph.TypeDescriptor{
		ID: TypeActor, Replicated: false,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypeCharacter, Parent: TypeActor, Category: repgraph.CategoryCharacter,
		Replicated: true, CullDistance: 15000, UpdateFrequency: 30,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypeHeroCharacter, Parent: TypeCharacter,
		Replicated: true, CullDistance: 15000, UpdateFrequency: 30,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypePlayerController, Parent: TypeActor, Category: repgraph.CategoryPlayerController,
		Replicated: true, OnlyRelevantToOwner: true, UpdateFrequency: 30,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypePlayerState, Parent: TypeActor, Category: repgraph.CategoryPlayerState,
		Replicated: true, AlwaysRelevant: true, UpdateFrequency: 10,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypeProjectile, Parent: TypeActor,
		Replicated: true, CullDistance: 8000, UpdateFrequency: 30,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypePickup, Parent: TypeActor,
		Replicated: true, CullDistance: 10000, UpdateFrequency: 5,
	})
	types.Register(repgraph.TypeDescriptor{
		ID: TypeGameState, Parent: TypeActor,
		Replicated: true, AlwaysRelevant: true, UpdateFrequency: 10,
	})
	return types
}

// Registry owns the live entities. Iteration order is insertion order,
// which the player-state frequency limiter relies on for stable bucketing.
type Registry struct {
	entities []*repgraph.Entity
	byID     map[string]*repgraph.Entity
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*repgraph.Entity)}
}

func (r *Registry) Add(e *repgraph.Entity) {
	if _, ok := r.byID[e.ID]; ok {
		return
	}
	r.entities = append(r.entities, e)
	r.byID[e.ID] = e
}

func (r *Registry) Remove(id string) *repgraph.Entity {
	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	for i, existing := range r.entities {
		if existing == e {
			r.entities = append(r.entities[:i], r.entities[i+1:]...)
			break
		}
	}
	return e
}

func (r *Registry) Find(id string) *repgraph.Entity {
	return r.byID[id]
}

func (r *Registry) All() []*repgraph.Entity {
	return r.entities
}

func (r *Registry) Len() int {
	return len(r.entities)
}

// OfType lists entities whose type matches, in registry order.
func (r *Registry) OfType(id repgraph.TypeID) []*repgraph.Entity {
	var out []*repgraph.Entity
	for _, e := range r.entities {
		if e.Type == id {
			out = append(out, e)
		}
	}
	return out
}

// PlayerStates feeds the frequency limiter.
func (r *Registry) PlayerStates() []*repgraph.Entity {
	return r.OfType(TypePlayerState)
}

// Mover drives simple wander movement for the demo tick.
type Mover struct {
	rng      *rand.Rand
	headings map[string]float64
	speed    float64
	bounds   float64
}

func NewMover(seed int64, speed, bounds float64) *Mover {
	return &Mover{
		rng:      rand.New(rand.NewSource(seed)),
		headings: make(map[string]float64),
		speed:    speed,
		bounds:   bounds,
	}
}

// Step advances every moving entity by dt seconds, occasionally turning,
// and bounces off the world bounds.
func (m *Mover) Step(entities []*repgraph.Entity, dt float64) {
	for _, e := range entities {
		heading, ok := m.headings[e.ID]
		if !ok || m.rng.Float64() < 0.02 {
			heading = m.rng.Float64() * 2 * math.Pi
		}
		e.Position.X += math.Cos(heading) * m.speed * dt
		e.Position.Y += math.Sin(heading) * m.speed * dt
		if math.Abs(e.Position.X) > m.bounds {
			heading = math.Pi - heading
			e.Position.X = math.Copysign(m.bounds, e.Position.X)
		}
		if math.Abs(e.Position.Y) > m.bounds {
			heading = -heading
			e.Position.Y = math.Copysign(m.bounds, e.Position.Y)
		}
		m.headings[e.ID] = heading
	}
}
