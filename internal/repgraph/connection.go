package repgraph

import "github.com/google/uuid"

// Viewer is one viewpoint on a connection: the viewing entity (usually a
// player controller), what it currently looks at, and the player entities
// hanging off it. Split-screen connections carry several viewers.
type Viewer struct {
	Controller  *Entity
	ViewTarget  *Entity
	Pawn        *Entity
	PlayerState *Entity
}

// ViewLocation is the position relevancy is computed from: the view
// target's if set, otherwise the controller's.
func (v *Viewer) ViewLocation() (Vec2, bool) {
	if v.ViewTarget != nil {
		return v.ViewTarget.Position, true
	}
	if v.Controller != nil {
		return v.Controller.Position, true
	}
	return Vec2{}, false
}

// Connection is one client session as the graph sees it: an ordered slot,
// the current viewers, the per-connection node, and the per-entity
// replication records for this connection.
type Connection struct {
	id       string
	orderNum int

	viewers    []Viewer
	entityInfo map[string]*ConnectionEntityInfo

	// Entity IDs destroyed near this connection's viewers, waiting for the
	// transport to drain and notify the client.
	pendingDestroyed []string

	node  *AlwaysRelevantForConnection
	graph *Graph
}

// DrainDestroyed returns and clears the queued destruction notifies.
func (c *Connection) DrainDestroyed() []string {
	destroyed := c.pendingDestroyed
	c.pendingDestroyed = nil
	return destroyed
}

func (c *Connection) ID() string {
	return c.id
}

// OrderNum is the connection's registration index, used for per-connection
// frame staggering.
func (c *Connection) OrderNum() int {
	return c.orderNum
}

// SetViewers replaces the connection's viewpoints. Called by the transport
// layer between ticks, never during a gather.
func (c *Connection) SetViewers(viewers []Viewer) {
	c.viewers = viewers
}

func (c *Connection) Viewers() []Viewer {
	return c.viewers
}

// ViewTarget is the primary viewer's view target, falling back to its
// controller.
func (c *Connection) ViewTarget() *Entity {
	if len(c.viewers) == 0 {
		return nil
	}
	if c.viewers[0].ViewTarget != nil {
		return c.viewers[0].ViewTarget
	}
	return c.viewers[0].Controller
}

// FindOrAddEntityInfo returns this connection's record for the entity,
// creating it on demand with the type's replication period.
func (c *Connection) FindOrAddEntityInfo(e *Entity) *ConnectionEntityInfo {
	if info, ok := c.entityInfo[e.ID]; ok {
		return info
	}
	info := &ConnectionEntityInfo{
		ReplicationPeriodFrames: c.graph.ClassInfoFor(e.Type).ReplicationPeriodFrames,
	}
	c.entityInfo[e.ID] = info
	return info
}

func (c *Connection) FindEntityInfo(entityID string) *ConnectionEntityInfo {
	return c.entityInfo[entityID]
}

func (c *Connection) dropEntityInfo(entityID string) {
	delete(c.entityInfo, entityID)
}

// SetDormant marks the entity dormant (or awake) for this connection.
func (c *Connection) SetDormant(e *Entity, dormant bool) {
	c.FindOrAddEntityInfo(e).Dormant = dormant
}

// OnLevelVisible tells the per-connection node the client now sees a
// streamed sub-level.
func (c *Connection) OnLevelVisible(level string) {
	c.node.onLevelVisible(level)
}

// OnLevelHidden tells the per-connection node the client dropped a streamed
// sub-level.
func (c *Connection) OnLevelHidden(level string) {
	c.node.onLevelHidden(level)
}

// ConnectionHandle is the opaque result of registering a connection. The
// per-connection node lives exactly as long as the handle; Release detaches
// everything when the transport closes the session.
type ConnectionHandle struct {
	id    string
	conn  *Connection
	graph *Graph
}

func newConnectionHandle(graph *Graph, conn *Connection) *ConnectionHandle {
	return &ConnectionHandle{id: uuid.NewString(), conn: conn, graph: graph}
}

func (h *ConnectionHandle) ID() string {
	return h.id
}

func (h *ConnectionHandle) Connection() *Connection {
	return h.conn
}

// Release detaches the connection from the graph. Safe to call once per
// handle; the transport owns when.
func (h *ConnectionHandle) Release() {
	if h.conn == nil {
		return
	}
	h.graph.unregisterConnection(h.conn)
	h.conn = nil
}
