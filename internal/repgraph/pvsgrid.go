package repgraph

import "github.com/sirupsen/logrus"

type cachedPVSEntity struct {
	entity  *Entity
	cell    CellKey
	hasCell bool
}

// PVSGridNode spatializes hero characters through a precomputed visibility
// table: a connection gathers the entity buckets of every cell visible from
// its view target's cell, instead of raycasting or scanning all entities.
// Only dynamic entities are supported; the generic node entry points are
// disallowed so nothing routes in without going through AddDynamic.
type PVSGridNode struct {
	cellSize float64
	bias     Vec2
	table    Table

	cells   map[CellKey][]*Entity
	dynamic map[string]*cachedPVSEntity

	global *GlobalInfoMap
	stats  *Stats
	log    *logrus.Entry
}

func NewPVSGridNode(cellSize float64, bias Vec2, table Table, global *GlobalInfoMap, stats *Stats, log *logrus.Entry) *PVSGridNode {
	return &PVSGridNode{
		cellSize: cellSize,
		bias:     bias,
		table:    table,
		cells:    make(map[CellKey][]*Entity),
		dynamic:  make(map[string]*cachedPVSEntity),
		global:   global,
		stats:    stats,
		log:      log,
	}
}

// NotifyAdd must not be called; routing goes through AddDynamic.
func (n *PVSGridNode) NotifyAdd(e *Entity) {
	panic("repgraph: PVSGridNode.NotifyAdd must not be called directly; use AddDynamic")
}

// NotifyRemove must not be called; routing goes through RemoveDynamic.
func (n *PVSGridNode) NotifyRemove(e *Entity) bool {
	panic("repgraph: PVSGridNode.NotifyRemove must not be called directly; use RemoveDynamic")
}

// AddDynamic registers the entity without a cell; the next prepare pass
// assigns one from its position.
func (n *PVSGridNode) AddDynamic(e *Entity) {
	n.dynamic[e.ID] = &cachedPVSEntity{entity: e}
	n.log.WithField("entity", e.ID).Debug("dynamic entity added to pvs grid")
}

// RemoveDynamic purges the entity from its last cell bucket. Removing an
// unknown entity logs and no-ops.
func (n *PVSGridNode) RemoveDynamic(e *Entity) bool {
	cached, ok := n.dynamic[e.ID]
	if !ok {
		n.log.WithField("entity", e.ID).Warn("dynamic entity not tracked by pvs grid")
		return false
	}
	if cached.hasCell {
		bucket, removed := removeFromList(n.cells[cached.cell], e)
		if !removed {
			n.log.WithFields(logrus.Fields{
				"entity": e.ID,
				"cell":   cached.cell,
			}).Warn("dynamic entity not found in its pvs cell bucket")
		}
		if len(bucket) == 0 {
			delete(n.cells, cached.cell)
		} else {
			n.cells[cached.cell] = bucket
		}
	}
	delete(n.dynamic, e.ID)
	n.log.WithField("entity", e.ID).Debug("dynamic entity removed from pvs grid")
	return true
}

// PrepareForReplication caches each tracked entity's location into its
// global record, re-derives its cell, and migrates the bucket membership
// when the cell changed. At most one migration happens per entity per call.
func (n *PVSGridNode) PrepareForReplication() {
	for _, cached := range n.dynamic {
		e := cached.entity
		n.global.FindOrAdd(e.ID).WorldLocation = e.Position

		key := cellForPosition(e.Position, n.bias, n.cellSize)
		if cached.hasCell {
			if cached.cell == key {
				continue
			}
			n.log.WithFields(logrus.Fields{
				"entity": e.ID,
				"from":   cached.cell,
				"to":     key,
			}).Debug("dynamic entity migrating pvs cells")
			bucket, _ := removeFromList(n.cells[cached.cell], e)
			if len(bucket) == 0 {
				delete(n.cells, cached.cell)
			} else {
				n.cells[cached.cell] = bucket
			}
			n.stats.PVSMigrations.Add(1)
		}
		n.cells[key] = append(n.cells[key], e)
		cached.cell = key
		cached.hasCell = true
	}
}

// Gather resolves the connection's view-target cell through the lookup
// table and unions the buckets of every visible cell. A cell with no table
// entry currently sees nothing.
func (n *PVSGridNode) Gather(p *GatherParams) {
	target := p.Conn.ViewTarget()
	if target == nil {
		return
	}
	info := n.global.Find(target.ID)
	if info == nil {
		return
	}

	key := cellForPosition(info.WorldLocation, n.bias, n.cellSize)
	visible, ok := n.table[key]
	if !ok {
		return
	}
	for _, cell := range visible {
		p.Out.AddList(n.cells[cell])
	}
}

// CachedCell exposes the last-derived cell for tests and debug output.
func (n *PVSGridNode) CachedCell(entityID string) (CellKey, bool) {
	cached, ok := n.dynamic[entityID]
	if !ok || !cached.hasCell {
		return CellKey{}, false
	}
	return cached.cell, true
}
