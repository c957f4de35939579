package repgraph

import "github.com/sirupsen/logrus"

// cachedRelevantEntities remembers, per viewer, the last controlled and
// viewed entity so swaps can be detected and force-updated.
type cachedRelevantEntities struct {
	lastPawn       *Entity
	lastViewTarget *Entity
}

// AlwaysRelevantForConnection is the per-connection node. It keeps no
// persistent entity list; membership is cheaply derivable from the
// connection's current viewers, so the list is rebuilt on every gather.
type AlwaysRelevantForConnection struct {
	graph *Graph
	conn  *Connection

	// Streamed sub-levels the client currently has visible. A level is
	// dropped once everything in its list is dormant for this connection
	// and restored by the next level-visible event.
	levelsNeedingReplication []string

	pastRelevant           map[string]*cachedRelevantEntities
	initializedPlayerState bool

	log *logrus.Entry
}

func newAlwaysRelevantForConnection(graph *Graph, conn *Connection, log *logrus.Entry) *AlwaysRelevantForConnection {
	return &AlwaysRelevantForConnection{
		graph:        graph,
		conn:         conn,
		pastRelevant: make(map[string]*cachedRelevantEntities),
		log:          log,
	}
}

// NotifyAdd is a no-op: membership is derived from the connection's
// viewers, not routed.
func (n *AlwaysRelevantForConnection) NotifyAdd(e *Entity) {}

// NotifyRemove is a no-op for the same reason.
func (n *AlwaysRelevantForConnection) NotifyRemove(e *Entity) bool { return false }

func (n *AlwaysRelevantForConnection) Gather(p *GatherParams) {
	types := n.graph.Types()

	for i := range n.conn.viewers {
		viewer := &n.conn.viewers[i]
		p.Out.Add(viewer.Controller)
		p.Out.Add(viewer.ViewTarget)

		if viewer.Controller == nil || !types.HasAncestorCategory(viewer.Controller.Type, CategoryPlayerController) {
			continue
		}

		// 50% duty cycle: each connection replicates its own player state
		// on alternating frames, staggered by registration order. The
		// frequency limiter covers third-party visibility of the same
		// records.
		if n.conn.orderNum%2 == int(p.Frame%2) {
			if ps := viewer.PlayerState; ps != nil {
				if !n.initializedPlayerState {
					n.initializedPlayerState = true
					info := n.conn.FindOrAddEntityInfo(ps)
					info.ReplicationPeriodFrames = 1
					info.NextRepFrame = p.Frame
				}
				p.Out.Add(ps)
			}
		}

		last := n.pastRelevant[viewer.Controller.ID]
		if last == nil {
			last = &cachedRelevantEntities{}
			n.pastRelevant[viewer.Controller.ID] = last
		}

		if pawn := viewer.Pawn; pawn != nil && types.HasAncestorCategory(pawn.Type, CategoryCharacter) {
			n.updateCachedRelevant(p.Frame, pawn, &last.lastPawn)
			if pawn != viewer.ViewTarget {
				p.Out.Add(pawn)
			}
		}
		if target := viewer.ViewTarget; target != nil && types.HasAncestorCategory(target.Type, CategoryCharacter) {
			n.updateCachedRelevant(p.Frame, target, &last.lastViewTarget)
		}
	}

	n.pruneStaleCachedEntries()
	n.gatherStreamedLevels(p)
}

// updateCachedRelevant force-updates both sides of a pawn or view-target
// swap so the new entity replicates immediately instead of waiting out its
// period.
func (n *AlwaysRelevantForConnection) updateCachedRelevant(frame uint64, current *Entity, slot **Entity) {
	if *slot == current {
		return
	}
	if prev := *slot; prev != nil {
		n.graph.Global().FindOrAdd(prev.ID).ForceNetUpdateFrame = frame
	}
	n.graph.Global().FindOrAdd(current.ID).ForceNetUpdateFrame = frame
	*slot = current
}

func (n *AlwaysRelevantForConnection) pruneStaleCachedEntries() {
	for controllerID := range n.pastRelevant {
		live := false
		for i := range n.conn.viewers {
			if c := n.conn.viewers[i].Controller; c != nil && c.ID == controllerID {
				live = true
				break
			}
		}
		if !live {
			delete(n.pastRelevant, controllerID)
		}
	}
}

func (n *AlwaysRelevantForConnection) gatherStreamedLevels(p *GatherParams) {
	for i := len(n.levelsNeedingReplication) - 1; i >= 0; i-- {
		level := n.levelsNeedingReplication[i]

		list := n.graph.levelLists.find(level)
		if list == nil {
			// No always-relevant list for that level anymore.
			n.removeLevelAt(i)
			continue
		}
		if len(list) == 0 {
			n.log.WithField("level", level).Warn("empty streamed-level always-relevant list")
			continue
		}

		allDormant := true
		for _, e := range list {
			info := n.conn.FindOrAddEntityInfo(e)
			if !info.Dormant {
				allDormant = false
				break
			}
		}
		if allDormant {
			n.log.WithField("level", level).Debug("streamed level fully dormant, dropping list")
			n.removeLevelAt(i)
			continue
		}
		p.Out.AddList(list)
	}
}

func (n *AlwaysRelevantForConnection) removeLevelAt(i int) {
	n.levelsNeedingReplication[i] = n.levelsNeedingReplication[len(n.levelsNeedingReplication)-1]
	n.levelsNeedingReplication = n.levelsNeedingReplication[:len(n.levelsNeedingReplication)-1]
}

func (n *AlwaysRelevantForConnection) onLevelVisible(level string) {
	for _, existing := range n.levelsNeedingReplication {
		if existing == level {
			return
		}
	}
	n.levelsNeedingReplication = append(n.levelsNeedingReplication, level)
	n.log.WithField("level", level).Debug("client level visible")
}

func (n *AlwaysRelevantForConnection) onLevelHidden(level string) {
	for i, existing := range n.levelsNeedingReplication {
		if existing == level {
			n.removeLevelAt(i)
			break
		}
	}
	n.log.WithField("level", level).Debug("client level hidden")
}

// resetState drops the frame-rebuilt state when the game world resets.
func (n *AlwaysRelevantForConnection) resetState() {
	n.levelsNeedingReplication = nil
	n.pastRelevant = make(map[string]*cachedRelevantEntities)
}
