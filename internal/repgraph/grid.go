package repgraph

import "github.com/sirupsen/logrus"

// gridCell owns the entity sub-lists for one cell, split by mobility class.
type gridCell struct {
	dynamic []*Entity
	static  []*Entity
	dormant []*Entity
}

func removeFromList(list []*Entity, e *Entity) ([]*Entity, bool) {
	for i, existing := range list {
		if existing != e {
			continue
		}
		list[i] = list[len(list)-1]
		return list[:len(list)-1], true
	}
	return list, false
}

type cachedGridEntity struct {
	entity  *Entity
	cell    CellKey
	hasCell bool
}

// GridNode is the distance-based spatialization node: a sparse 2D grid of
// cells, lazily expanded as coordinates are encountered. Dynamic entities
// migrate between cells during the prepare pass and replicate round-robin
// across frequency buckets; static and dormancy entities keep their
// add-time cell. Dormancy entities are additionally filtered per connection
// at gather time.
type GridNode struct {
	cellSize float64
	bias     Vec2
	cells    map[CellKey]*gridCell

	// Dynamic entities spread across this many frequency buckets; each
	// gather emits one bucket per cell.
	frequencyBuckets int

	dynamic map[string]*cachedGridEntity
	static  map[string]CellKey
	dormant map[string]CellKey

	// Types on the deny list keep their insertion cell even when they move,
	// trading staleness for prepare-pass CPU.
	rebuildDeny map[TypeID]bool
	denyAll     bool

	global *GlobalInfoMap
	stats  *Stats
	log    *logrus.Entry
}

func NewGridNode(cellSize float64, bias Vec2, frequencyBuckets int, global *GlobalInfoMap, stats *Stats, log *logrus.Entry) *GridNode {
	if frequencyBuckets < 1 {
		frequencyBuckets = 1
	}
	return &GridNode{
		cellSize:         cellSize,
		bias:             bias,
		frequencyBuckets: frequencyBuckets,
		cells:            make(map[CellKey]*gridCell),
		dynamic:          make(map[string]*cachedGridEntity),
		static:           make(map[string]CellKey),
		dormant:          make(map[string]CellKey),
		rebuildDeny:      make(map[TypeID]bool),
		global:           global,
		stats:            stats,
		log:              log,
	}
}

// AddToRebuildDenyList disables per-tick cell migration for a type. An
// empty type denies every type, matching a full spatial-rebuild disable.
func (n *GridNode) AddToRebuildDenyList(id TypeID) {
	if id == "" {
		n.denyAll = true
		return
	}
	n.rebuildDeny[id] = true
}

func (n *GridNode) cell(key CellKey) *gridCell {
	c, ok := n.cells[key]
	if !ok {
		c = &gridCell{}
		n.cells[key] = c
	}
	return c
}

func (n *GridNode) AddDynamic(e *Entity) {
	key := cellForPosition(e.Position, n.bias, n.cellSize)
	cell := n.cell(key)
	cell.dynamic = append(cell.dynamic, e)
	n.dynamic[e.ID] = &cachedGridEntity{entity: e, cell: key, hasCell: true}
}

func (n *GridNode) RemoveDynamic(e *Entity) bool {
	cached, ok := n.dynamic[e.ID]
	if !ok {
		n.log.WithField("entity", e.ID).Warn("dynamic entity not tracked by grid")
		return false
	}
	delete(n.dynamic, e.ID)
	if !cached.hasCell {
		return true
	}
	cell := n.cells[cached.cell]
	if cell == nil {
		n.log.WithField("entity", e.ID).Warn("dynamic entity cell missing on remove")
		return false
	}
	var removed bool
	cell.dynamic, removed = removeFromList(cell.dynamic, e)
	if !removed {
		n.log.WithField("entity", e.ID).Warn("dynamic entity not found in its grid cell")
	}
	return removed
}

func (n *GridNode) AddStatic(e *Entity) {
	key := cellForPosition(e.Position, n.bias, n.cellSize)
	cell := n.cell(key)
	cell.static = append(cell.static, e)
	n.static[e.ID] = key
}

func (n *GridNode) RemoveStatic(e *Entity) bool {
	key, ok := n.static[e.ID]
	if !ok {
		n.log.WithField("entity", e.ID).Warn("static entity not tracked by grid")
		return false
	}
	delete(n.static, e.ID)
	cell := n.cells[key]
	if cell == nil {
		return false
	}
	var removed bool
	cell.static, removed = removeFromList(cell.static, e)
	return removed
}

func (n *GridNode) AddDormancy(e *Entity) {
	key := cellForPosition(e.Position, n.bias, n.cellSize)
	cell := n.cell(key)
	cell.dormant = append(cell.dormant, e)
	n.dormant[e.ID] = key
}

func (n *GridNode) RemoveDormancy(e *Entity) bool {
	key, ok := n.dormant[e.ID]
	if !ok {
		n.log.WithField("entity", e.ID).Warn("dormancy entity not tracked by grid")
		return false
	}
	delete(n.dormant, e.ID)
	cell := n.cells[key]
	if cell == nil {
		return false
	}
	var removed bool
	cell.dormant, removed = removeFromList(cell.dormant, e)
	return removed
}

// PrepareForReplication re-derives every dynamic entity's cell from its
// current position and migrates it when the cell changed. Runs once per
// tick before any gather.
func (n *GridNode) PrepareForReplication() {
	for _, cached := range n.dynamic {
		e := cached.entity
		n.global.FindOrAdd(e.ID).WorldLocation = e.Position

		if n.denyAll || n.rebuildDeny[e.Type] {
			continue
		}

		key := cellForPosition(e.Position, n.bias, n.cellSize)
		if cached.hasCell && cached.cell == key {
			continue
		}
		if cached.hasCell {
			if prev := n.cells[cached.cell]; prev != nil {
				prev.dynamic, _ = removeFromList(prev.dynamic, e)
			}
			n.stats.GridMigrations.Add(1)
		}
		n.cell(key).dynamic = append(n.cell(key).dynamic, e)
		cached.cell = key
		cached.hasCell = true
	}
}

// Gather emits the cell each viewer stands in: the static list
// unconditionally, the dynamic list striped across frequency buckets by
// frame, and dormancy entities only while awake on this connection. A
// force-update stamp overrides a dynamic entity's bucket.
func (n *GridNode) Gather(p *GatherParams) {
	bucket := int(p.Frame % uint64(n.frequencyBuckets))
	for _, viewer := range p.Conn.Viewers() {
		loc, ok := viewer.ViewLocation()
		if !ok {
			continue
		}
		cell := n.cells[cellForPosition(loc, n.bias, n.cellSize)]
		if cell == nil {
			continue
		}
		for i, e := range cell.dynamic {
			if i%n.frequencyBuckets == bucket {
				p.Out.Add(e)
				continue
			}
			if info := n.global.Find(e.ID); info != nil && info.ForceNetUpdateFrame >= p.Frame {
				p.Out.Add(e)
			}
		}
		p.Out.AddList(cell.static)
		for _, e := range cell.dormant {
			if info := p.Conn.FindEntityInfo(e.ID); info != nil && info.Dormant {
				continue
			}
			p.Out.Add(e)
		}
	}
}
