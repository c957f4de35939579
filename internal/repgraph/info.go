package repgraph

// GlobalEntityInfo is the per-entity replication record shared across all
// connections: the location cached during the last prepare pass plus the
// force-update frame stamp.
type GlobalEntityInfo struct {
	WorldLocation         Vec2
	ForceNetUpdateFrame   uint64
	IgnoreDistanceCulling bool
}

// GlobalInfoMap owns the global records, created lazily on first route and
// destroyed when the entity leaves the graph.
type GlobalInfoMap struct {
	infos map[string]*GlobalEntityInfo
}

func NewGlobalInfoMap() *GlobalInfoMap {
	return &GlobalInfoMap{infos: make(map[string]*GlobalEntityInfo)}
}

func (m *GlobalInfoMap) FindOrAdd(entityID string) *GlobalEntityInfo {
	if info, ok := m.infos[entityID]; ok {
		return info
	}
	info := &GlobalEntityInfo{}
	m.infos[entityID] = info
	return info
}

func (m *GlobalInfoMap) Find(entityID string) *GlobalEntityInfo {
	return m.infos[entityID]
}

func (m *GlobalInfoMap) Remove(entityID string) {
	delete(m.infos, entityID)
}

func (m *GlobalInfoMap) Len() int {
	return len(m.infos)
}

// ConnectionEntityInfo is the per-(entity, connection) record: replication
// frame bookkeeping plus the dormancy flag for that connection.
type ConnectionEntityInfo struct {
	LastRepFrame            uint64
	NextRepFrame            uint64
	ReplicationPeriodFrames uint64
	Dormant                 bool
}

// ReadyForNextReplication reports whether the entity is due on this
// connection at the given frame, honoring a force-update stamped after the
// last replication.
func ReadyForNextReplication(conn *ConnectionEntityInfo, global *GlobalEntityInfo, frame uint64) bool {
	return conn.NextRepFrame <= frame || global.ForceNetUpdateFrame > conn.LastRepFrame
}
