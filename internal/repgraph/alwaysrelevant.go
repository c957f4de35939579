package repgraph

import "github.com/sirupsen/logrus"

// AlwaysRelevantNode holds the entities relevant to every connection. The
// list is persistent; gather just re-emits it.
type AlwaysRelevantNode struct {
	entities []*Entity
	log      *logrus.Entry
}

func NewAlwaysRelevantNode(log *logrus.Entry) *AlwaysRelevantNode {
	return &AlwaysRelevantNode{log: log}
}

func (n *AlwaysRelevantNode) NotifyAdd(e *Entity) {
	for _, existing := range n.entities {
		if existing == e {
			return
		}
	}
	n.entities = append(n.entities, e)
}

// NotifyRemove erases the entity with a swap-remove. A miss is logged and
// reported, never fatal.
func (n *AlwaysRelevantNode) NotifyRemove(e *Entity) bool {
	for i, existing := range n.entities {
		if existing != e {
			continue
		}
		n.entities[i] = n.entities[len(n.entities)-1]
		n.entities = n.entities[:len(n.entities)-1]
		return true
	}
	n.log.WithField("entity", e.ID).Warn("entity not found in always-relevant list")
	return false
}

func (n *AlwaysRelevantNode) Gather(p *GatherParams) {
	p.Out.AddList(n.entities)
}

func (n *AlwaysRelevantNode) Len() int {
	return len(n.entities)
}

// levelActorLists segregates always-relevant entities by streamed sub-level
// name. Connections only replicate the lists of levels they currently have
// visible.
type levelActorLists struct {
	byLevel map[string][]*Entity
	log     *logrus.Entry
}

func newLevelActorLists(log *logrus.Entry) *levelActorLists {
	return &levelActorLists{byLevel: make(map[string][]*Entity), log: log}
}

func (l *levelActorLists) add(level string, e *Entity) {
	list := l.byLevel[level]
	for _, existing := range list {
		if existing == e {
			return
		}
	}
	l.byLevel[level] = append(list, e)
}

func (l *levelActorLists) remove(level string, e *Entity) {
	list, ok := l.byLevel[level]
	if !ok {
		l.log.WithFields(logrus.Fields{
			"entity": e.ID,
			"level":  level,
		}).Warn("entity not found in streamed-level always-relevant list")
		return
	}
	for i, existing := range list {
		if existing != e {
			continue
		}
		list[i] = list[len(list)-1]
		l.byLevel[level] = list[:len(list)-1]
		if len(l.byLevel[level]) == 0 {
			delete(l.byLevel, level)
		}
		return
	}
	l.log.WithFields(logrus.Fields{
		"entity": e.ID,
		"level":  level,
	}).Warn("entity not found in streamed-level always-relevant list")
}

func (l *levelActorLists) find(level string) []*Entity {
	return l.byLevel[level]
}

func (l *levelActorLists) reset() {
	l.byLevel = make(map[string][]*Entity)
}
