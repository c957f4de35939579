package repgraph

import "testing"

func namedStates(names ...string) []*Entity {
	states := make([]*Entity, 0, len(names))
	for _, name := range names {
		states = append(states, &Entity{ID: name, Type: "PlayerState"})
	}
	return states
}

func limiterGather(n *PlayerStateFrequencyLimiter, frame uint64) []string {
	out := &GatherList{}
	n.Gather(&GatherParams{Frame: frame, Out: out})
	ids := make([]string, 0, out.Len())
	for _, e := range out.Entities() {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestFrequencyLimiterBucketing(t *testing.T) {
	states := namedStates("a", "b", "c", "d", "e")
	n := NewPlayerStateFrequencyLimiter(2, func() []*Entity { return states })

	n.PrepareForReplication()
	if got := n.BucketCount(); got != 3 {
		t.Fatalf("bucket count = %d, want 3 for 5 records at 2 per frame", got)
	}

	for frame := uint64(0); frame < 3; frame++ {
		if got := len(limiterGather(n, frame)); got > 2 {
			t.Fatalf("frame %d returned %d records, budget is 2", frame, got)
		}
	}
}

func TestFrequencyLimiterCoversEveryRecord(t *testing.T) {
	states := namedStates("a", "b", "c", "d", "e")
	n := NewPlayerStateFrequencyLimiter(2, func() []*Entity { return states })

	seen := make(map[string]bool)
	for frame := uint64(0); frame < uint64(n.TargetPerFrame)*3; frame++ {
		n.PrepareForReplication()
		for _, id := range limiterGather(n, frame) {
			seen[id] = true
		}
	}
	for _, s := range states {
		if !seen[s.ID] {
			t.Fatalf("record %s never replicated across a full bucket cycle", s.ID)
		}
	}
}

func TestFrequencyLimiterShrinksWithPopulation(t *testing.T) {
	states := namedStates("a", "b", "c", "d", "e")
	n := NewPlayerStateFrequencyLimiter(2, func() []*Entity { return states })

	n.PrepareForReplication()
	states = states[:2]
	n.PrepareForReplication()

	if got := n.BucketCount(); got != 1 {
		t.Fatalf("bucket count = %d, want 1 after players left", got)
	}
}

func TestFrequencyLimiterForcedUpdates(t *testing.T) {
	states := namedStates("a", "b", "c", "d", "e")
	n := NewPlayerStateFrequencyLimiter(2, func() []*Entity { return states })
	n.PrepareForReplication()

	// "e" sits in the last bucket; forcing it adds it to every frame's
	// gather until the next prepare.
	n.ForceNetUpdate(states[4])
	for frame := uint64(0); frame < 2; frame++ {
		if ids := limiterGather(n, frame); !containsID(ids, "e") {
			t.Fatalf("forced record missing on frame %d: %v", frame, ids)
		}
	}

	n.PrepareForReplication()
	if ids := limiterGather(n, 0); containsID(ids, "e") {
		t.Fatalf("forced flag survived the prepare pass: %v", ids)
	}
}
