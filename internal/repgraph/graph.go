package repgraph

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Kungya/NebulaReplicationGraph/internal/settings"
)

// Graph assembles the nodes and owns routing, the per-tick prepare pass,
// and per-connection gathers. All of it runs on the single tick goroutine:
// add/remove notifications and prepare mutate, gathers only read.
type Graph struct {
	cfg   *settings.Settings
	types *TypeTable

	resolver *PolicyResolver
	global   *GlobalInfoMap
	stats    *Stats

	grid           *GridNode
	alwaysRelevant *AlwaysRelevantNode
	pvs            *PVSGridNode
	freq           *PlayerStateFrequencyLimiter
	levelLists     *levelActorLists

	connections  []*Connection
	nextOrderNum int
	frame        uint64

	classInfo     map[TypeID]ClassReplicationInfo
	explicitlySet []TypeID

	log *logrus.Entry
}

// New builds a graph from immutable settings. A nil table falls back to the
// built-in test layout; source feeds the player-state frequency limiter in
// registry iteration order.
func New(cfg *settings.Settings, types *TypeTable, table Table, source PlayerStateSource, logger *logrus.Logger) *Graph {
	log := logger.WithField("component", "repgraph")
	if table == nil {
		table = DefaultTable()
	}

	g := &Graph{
		cfg:        cfg,
		types:      types,
		global:     NewGlobalInfoMap(),
		stats:      &Stats{},
		levelLists: newLevelActorLists(log.WithField("node", "always-relevant-levels")),
		classInfo:  make(map[TypeID]ClassReplicationInfo),
		log:        log,
	}
	g.resolver = NewPolicyResolver(types, log.WithField("node", "policy"))
	g.grid = NewGridNode(
		cfg.GridCellSize,
		Vec2{X: cfg.GridSpatialBiasX, Y: cfg.GridSpatialBiasY},
		cfg.DynamicFrequencyBuckets,
		g.global, g.stats, log.WithField("node", "grid"),
	)
	g.alwaysRelevant = NewAlwaysRelevantNode(log.WithField("node", "always-relevant"))
	g.pvs = NewPVSGridNode(
		cfg.PVSCellSize,
		Vec2{X: cfg.PVSSpatialBiasX, Y: cfg.PVSSpatialBiasY},
		table, g.global, g.stats, log.WithField("node", "pvs-grid"),
	)
	g.freq = NewPlayerStateFrequencyLimiter(cfg.PlayerStatesPerFrame, source)

	if cfg.DisableSpatialRebuilds {
		g.grid.AddToRebuildDenyList("")
	}

	for typeName, policyName := range cfg.TypeOverrides {
		policy, ok := ParsePolicy(policyName)
		if !ok {
			log.WithFields(logrus.Fields{
				"type":   typeName,
				"policy": policyName,
			}).Warn("unknown routing policy override, ignoring")
			continue
		}
		g.resolver.SetOverride(TypeID(typeName), policy)
	}

	return g
}

func (g *Graph) Types() *TypeTable      { return g.types }
func (g *Graph) Global() *GlobalInfoMap { return g.global }
func (g *Graph) Stats() *Stats          { return g.stats }
func (g *Graph) Frame() uint64          { return g.frame }
func (g *Graph) Resolver() *PolicyResolver {
	return g.resolver
}

// SetExplicitClassInfo pins a type's replication tuning, excluding it (and
// its subtypes) from derivation off the legacy per-type defaults.
func (g *Graph) SetExplicitClassInfo(id TypeID, info ClassReplicationInfo) {
	g.classInfo[id] = info
	g.explicitlySet = append(g.explicitlySet, id)
}

// ClassInfoFor resolves a type's replication tuning, deriving and caching
// it on first use. Subtypes of an explicitly set type share its record.
func (g *Graph) ClassInfoFor(id TypeID) ClassReplicationInfo {
	if info, ok := g.classInfo[id]; ok {
		return info
	}
	for _, set := range g.explicitlySet {
		if g.types.IsDescendantOf(id, set) {
			info := g.classInfo[set]
			g.classInfo[id] = info
			return info
		}
	}

	info := ClassReplicationInfo{
		ReplicationPeriodFrames: 1,
		DistancePriorityScale:   1,
		StarvationPriorityScale: 1,
	}
	if td := g.types.Lookup(id); td != nil {
		info.ReplicationPeriodFrames = ReplicationPeriodForFrequency(td.UpdateFrequency, g.cfg.TickRate)
		if g.resolver.Classify(id).Spatialized() {
			info.CullDistance = td.CullDistance
		}
	}
	g.classInfo[id] = info
	return info
}

// OnEntityAdded routes a newly replicated entity to the node its type's
// policy implies.
func (g *Graph) OnEntityAdded(e *Entity) {
	policy := g.resolver.Classify(e.Type)
	g.global.FindOrAdd(e.ID).WorldLocation = e.Position
	g.stats.EntitiesRouted.Add(1)

	switch policy {
	case PolicyNotRouted:

	case PolicyPrecomputedVisibility:
		// Static and dormancy variants of the PVS grid are not supported;
		// everything routed here is treated as dynamic.
		g.pvs.AddDynamic(e)

	case PolicyRelevantAllConnections:
		if e.StreamingLevel == "" {
			g.alwaysRelevant.NotifyAdd(e)
		} else {
			g.levelLists.add(e.StreamingLevel, e)
		}

	case PolicySpatializeStatic:
		g.grid.AddStatic(e)

	case PolicySpatializeDynamic:
		g.grid.AddDynamic(e)

	case PolicySpatializeDormancy:
		g.grid.AddDormancy(e)
	}
}

// OnEntityRemoved purges the entity from whichever node its policy routed
// it to, queues destruction notifies, and drops its records. Removing an
// entity twice logs inside the node and no-ops.
func (g *Graph) OnEntityRemoved(e *Entity) {
	policy := g.resolver.Classify(e.Type)
	g.stats.EntitiesRemoved.Add(1)

	switch policy {
	case PolicyNotRouted:

	case PolicyPrecomputedVisibility:
		g.pvs.RemoveDynamic(e)

	case PolicyRelevantAllConnections:
		if e.StreamingLevel == "" {
			g.alwaysRelevant.NotifyRemove(e)
		} else {
			g.levelLists.remove(e.StreamingLevel, e)
		}
		if info := g.global.Find(e.ID); info != nil {
			info.IgnoreDistanceCulling = true
		}

	case PolicySpatializeStatic:
		g.grid.RemoveStatic(e)

	case PolicySpatializeDynamic:
		g.grid.RemoveDynamic(e)

	case PolicySpatializeDormancy:
		g.grid.RemoveDormancy(e)
	}

	g.queueDestructionNotifies(e)

	g.global.Remove(e.ID)
	for _, conn := range g.connections {
		conn.dropEntityInfo(e.ID)
	}
}

// queueDestructionNotifies tells each connection about the destruction if
// the entity ignores distance culling or died within the configured
// max destruction-notify distance of a viewer.
func (g *Graph) queueDestructionNotifies(e *Entity) {
	info := g.global.Find(e.ID)
	if info == nil {
		return
	}
	maxDist := g.cfg.DestructionInfoMaxDist
	for _, conn := range g.connections {
		if info.IgnoreDistanceCulling {
			conn.pendingDestroyed = append(conn.pendingDestroyed, e.ID)
			continue
		}
		for i := range conn.viewers {
			loc, ok := conn.viewers[i].ViewLocation()
			if !ok {
				continue
			}
			if math.Hypot(loc.X-info.WorldLocation.X, loc.Y-info.WorldLocation.Y) <= maxDist {
				conn.pendingDestroyed = append(conn.pendingDestroyed, e.ID)
				break
			}
		}
	}
}

// ForceNetUpdate stamps the entity's global record so every node replicates
// it on the next gather regardless of its period, and flags its record in
// the frequency limiter.
func (g *Graph) ForceNetUpdate(e *Entity) {
	g.global.FindOrAdd(e.ID).ForceNetUpdateFrame = g.frame + 1
	if g.types.HasAncestorCategory(e.Type, CategoryPlayerState) {
		g.freq.ForceNetUpdate(e)
	}
}

// RegisterConnection attaches a new connection and its per-connection node.
// The returned handle owns the attachment; Release it when the transport
// closes the session.
func (g *Graph) RegisterConnection() *ConnectionHandle {
	conn := &Connection{
		orderNum:   g.nextOrderNum,
		entityInfo: make(map[string]*ConnectionEntityInfo),
		graph:      g,
	}
	g.nextOrderNum++
	handle := newConnectionHandle(g, conn)
	conn.id = handle.ID()
	conn.node = newAlwaysRelevantForConnection(g, conn, g.log.WithFields(logrus.Fields{
		"node": "always-relevant-for-connection",
		"conn": conn.id,
	}))
	g.connections = append(g.connections, conn)
	g.log.WithField("conn", conn.id).Info("connection registered")
	return handle
}

func (g *Graph) unregisterConnection(conn *Connection) {
	for i, existing := range g.connections {
		if existing != conn {
			continue
		}
		g.connections[i] = g.connections[len(g.connections)-1]
		g.connections = g.connections[:len(g.connections)-1]
		g.log.WithField("conn", conn.id).Info("connection released")
		return
	}
	g.log.WithField("conn", conn.id).Warn("connection already released")
}

func (g *Graph) Connections() []*Connection {
	return g.connections
}

// Prepare advances the frame and runs every node's per-tick bookkeeping.
// Must run once per tick before any gather; gathers in the same tick then
// observe a consistent snapshot.
func (g *Graph) Prepare() {
	g.frame++
	g.pvs.PrepareForReplication()
	g.grid.PrepareForReplication()
	g.freq.PrepareForReplication()
}

// GatherForConnection unions every node's relevant list for the
// connection. Duplicates are allowed; the downstream prioritizer owns
// deduplication and ordering.
func (g *Graph) GatherForConnection(conn *Connection) []*Entity {
	params := &GatherParams{Conn: conn, Frame: g.frame, Out: &GatherList{}}

	g.alwaysRelevant.Gather(params)
	g.grid.Gather(params)
	g.pvs.Gather(params)
	g.freq.Gather(params)
	conn.node.Gather(params)

	g.stats.Gathers.Add(1)
	g.stats.EntitiesGathered.Add(uint64(params.Out.Len()))
	return params.Out.Entities()
}

// ResetGameWorldState clears world-derived state across a map travel while
// keeping connections attached.
func (g *Graph) ResetGameWorldState() {
	g.levelLists.reset()
	for _, conn := range g.connections {
		conn.node.resetState()
	}
}

// Reconfigure is the controlled runtime-tuning entry point. Only values
// that do not invalidate existing cell assignments may change.
func (g *Graph) Reconfigure(playerStatesPerFrame int, destructionInfoMaxDist float64) {
	if playerStatesPerFrame > 0 {
		g.freq.TargetPerFrame = playerStatesPerFrame
	}
	if destructionInfoMaxDist > 0 {
		g.cfg = g.cfg.WithDestructionInfoMaxDist(destructionInfoMaxDist)
	}
	g.log.WithFields(logrus.Fields{
		"playerStatesPerFrame":   g.freq.TargetPerFrame,
		"destructionInfoMaxDist": g.cfg.DestructionInfoMaxDist,
	}).Info("graph reconfigured")
}

// LogRoutingPolicies prints the resolved type-to-policy table.
func (g *Graph) LogRoutingPolicies() {
	g.resolver.LogPolicies()
}
