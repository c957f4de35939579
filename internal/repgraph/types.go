// Package repgraph decides, once per simulation tick, which entities each
// connection must receive updates for. Relevancy is not recomputed per
// entity/connection pair; instead entities are routed into graph nodes that
// keep persistent (or cheaply rebuilt) lists and answer per-connection
// gathers from those lists.
package repgraph

import "math"

// Vec2 is a 2D world-space position.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CellKey identifies one square grid cell by integer coordinates.
type CellKey struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// cellForPosition maps a world position to its cell using the grid's bias
// and cell size. The bias shifts negative world coordinates into the
// non-negative index range.
func cellForPosition(pos Vec2, bias Vec2, cellSize float64) CellKey {
	return CellKey{
		X: int(math.Floor((pos.X - bias.X) / cellSize)),
		Y: int(math.Floor((pos.Y - bias.Y) / cellSize)),
	}
}

// TypeID names an entity type.
type TypeID string

// Category is an explicit capability tag on a type descriptor. It replaces
// runtime type tests for the handful of types the graph treats specially.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryCharacter
	CategoryPlayerController
	CategoryPlayerState
)

// TypeDescriptor is the per-type record the resolver classifies from.
// Parent is the immediate supertype ("" for a root type); relevancy flags
// mirror the legacy per-type defaults.
type TypeDescriptor struct {
	ID                  TypeID
	Parent              TypeID
	Category            Category
	Replicated          bool
	AlwaysRelevant      bool
	OnlyRelevantToOwner bool
	UseOwnerRelevancy   bool
	CullDistance        float64
	UpdateFrequency     float64
}

// relevancyFlagsEqual reports whether two descriptors would classify
// identically, which lets child types reuse their parent's policy.
func relevancyFlagsEqual(a, b *TypeDescriptor) bool {
	return a.Replicated == b.Replicated &&
		a.AlwaysRelevant == b.AlwaysRelevant &&
		a.OnlyRelevantToOwner == b.OnlyRelevantToOwner &&
		a.UseOwnerRelevancy == b.UseOwnerRelevancy
}

// TypeTable holds every known type descriptor.
type TypeTable struct {
	types map[TypeID]*TypeDescriptor
}

func NewTypeTable() *TypeTable {
	return &TypeTable{types: make(map[TypeID]*TypeDescriptor)}
}

func (t *TypeTable) Register(td TypeDescriptor) {
	copied := td
	t.types[td.ID] = &copied
}

func (t *TypeTable) Lookup(id TypeID) *TypeDescriptor {
	return t.types[id]
}

// IsDescendantOf walks the parent chain, including id itself.
func (t *TypeTable) IsDescendantOf(id, ancestor TypeID) bool {
	for cur := id; cur != ""; {
		if cur == ancestor {
			return true
		}
		td := t.types[cur]
		if td == nil {
			return false
		}
		cur = td.Parent
	}
	return false
}

// HasAncestorCategory reports whether id or any of its ancestors carries the
// given category tag.
func (t *TypeTable) HasAncestorCategory(id TypeID, cat Category) bool {
	for cur := id; cur != ""; {
		td := t.types[cur]
		if td == nil {
			return false
		}
		if td.Category == cat {
			return true
		}
		cur = td.Parent
	}
	return false
}

// Policy is the routing classification for an entity type. Every live
// entity has exactly one policy at any time.
type Policy uint8

const (
	PolicyNotRouted Policy = iota
	PolicyRelevantAllConnections
	PolicySpatializeStatic
	PolicySpatializeDynamic
	PolicySpatializeDormancy
	PolicyPrecomputedVisibility
)

var policyNames = map[Policy]string{
	PolicyNotRouted:              "NotRouted",
	PolicyRelevantAllConnections: "RelevantAllConnections",
	PolicySpatializeStatic:       "Spatialize_Static",
	PolicySpatializeDynamic:      "Spatialize_Dynamic",
	PolicySpatializeDormancy:     "Spatialize_Dormancy",
	PolicyPrecomputedVisibility:  "PrecomputedVisibility",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "Unknown"
}

// Spatialized reports whether the policy routes by world position.
func (p Policy) Spatialized() bool {
	return p >= PolicySpatializeStatic
}

// ParsePolicy resolves a policy by its settings-file name.
func ParsePolicy(name string) (Policy, bool) {
	for p, n := range policyNames {
		if n == name {
			return p, true
		}
	}
	return PolicyNotRouted, false
}

// Entity is a non-owning reference to a simulated object. The simulation
// owns the struct and updates Position every tick; the graph only keys
// bookkeeping records by ID.
type Entity struct {
	ID             string
	Type           TypeID
	Position       Vec2
	StreamingLevel string
}

// ClassReplicationInfo is the per-type replication tuning shared by every
// entity of that type.
type ClassReplicationInfo struct {
	CullDistance            float64
	ReplicationPeriodFrames uint64
	ChannelFrameTimeout     uint64
	DistancePriorityScale   float64
	StarvationPriorityScale float64
}

// ReplicationPeriodForFrequency converts an updates-per-second frequency to
// a whole number of frames at the given tick rate, never below one frame.
func ReplicationPeriodForFrequency(frequency float64, tickRate int) uint64 {
	if frequency <= 0 || tickRate <= 0 {
		return 1
	}
	period := math.Round(float64(tickRate) / frequency)
	if period < 1 {
		period = 1
	}
	return uint64(period)
}

// GatherList accumulates the relevant entities for one connection during a
// single tick. Duplicates across nodes are allowed; the downstream
// prioritizer deduplicates.
type GatherList struct {
	entities []*Entity
}

func (l *GatherList) Add(e *Entity) {
	if e == nil {
		return
	}
	l.entities = append(l.entities, e)
}

func (l *GatherList) AddList(list []*Entity) {
	l.entities = append(l.entities, list...)
}

func (l *GatherList) Entities() []*Entity {
	return l.entities
}

func (l *GatherList) Len() int {
	return len(l.entities)
}

// GatherParams carries the per-connection context handed to every node
// during a gather pass.
type GatherParams struct {
	Conn  *Connection
	Frame uint64
	Out   *GatherList
}

// Node is the generic graph node interface. Notify calls run when entities
// are routed in or out; Gather runs once per connection per tick.
type Node interface {
	NotifyAdd(e *Entity)
	NotifyRemove(e *Entity) bool
	Gather(p *GatherParams)
}

// Preparer is implemented by nodes with per-tick bookkeeping that must run
// before any gather of the same tick.
type Preparer interface {
	PrepareForReplication()
}
