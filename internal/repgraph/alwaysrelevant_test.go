package repgraph

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestAlwaysRelevantDedupesAdds(t *testing.T) {
	n := NewAlwaysRelevantNode(testLogger().WithField("node", "always-relevant"))
	e := &Entity{ID: "game", Type: "GameState"}

	n.NotifyAdd(e)
	n.NotifyAdd(e)
	if n.Len() != 1 {
		t.Fatalf("len = %d, want 1 after duplicate add", n.Len())
	}
}

func TestAlwaysRelevantRemoveMissWarns(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	n := NewAlwaysRelevantNode(logger.WithField("node", "always-relevant"))
	e := &Entity{ID: "game", Type: "GameState"}

	n.NotifyAdd(e)
	if !n.NotifyRemove(e) {
		t.Fatalf("first removal failed")
	}
	if n.NotifyRemove(e) {
		t.Fatalf("second removal reported success")
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning for the missed removal")
	}
}

func TestAlwaysRelevantGatherEmitsEverything(t *testing.T) {
	n := NewAlwaysRelevantNode(testLogger().WithField("node", "always-relevant"))
	n.NotifyAdd(&Entity{ID: "a", Type: "GameState"})
	n.NotifyAdd(&Entity{ID: "b", Type: "GameState"})

	out := &GatherList{}
	n.Gather(&GatherParams{Out: out})
	if out.Len() != 2 {
		t.Fatalf("gathered %d entities, want 2", out.Len())
	}
}

func TestLevelActorLists(t *testing.T) {
	l := newLevelActorLists(testLogger().WithField("node", "always-relevant-levels"))
	a := &Entity{ID: "a", StreamingLevel: "dungeon"}
	b := &Entity{ID: "b", StreamingLevel: "dungeon"}

	l.add("dungeon", a)
	l.add("dungeon", a)
	l.add("dungeon", b)
	if got := len(l.find("dungeon")); got != 2 {
		t.Fatalf("list len = %d, want 2", got)
	}

	l.remove("dungeon", a)
	if got := len(l.find("dungeon")); got != 1 {
		t.Fatalf("list len = %d, want 1 after remove", got)
	}

	// Removing the last entity drops the level entirely.
	l.remove("dungeon", b)
	if l.find("dungeon") != nil {
		t.Fatalf("empty level list was not dropped")
	}
}

func TestReadyForNextReplication(t *testing.T) {
	conn := &ConnectionEntityInfo{NextRepFrame: 10, LastRepFrame: 7}
	global := &GlobalEntityInfo{}

	if ReadyForNextReplication(conn, global, 9) {
		t.Fatalf("not due yet")
	}
	if !ReadyForNextReplication(conn, global, 10) {
		t.Fatalf("due at the scheduled frame")
	}

	// A force-update stamped after the last replication overrides the
	// period.
	global.ForceNetUpdateFrame = 8
	if !ReadyForNextReplication(conn, global, 9) {
		t.Fatalf("force-update should make the entity due")
	}
	global.ForceNetUpdateFrame = 7
	if ReadyForNextReplication(conn, global, 9) {
		t.Fatalf("stale force-update should not make the entity due")
	}
}
