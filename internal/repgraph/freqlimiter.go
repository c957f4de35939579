package repgraph

// PlayerStateSource lists the currently valid player-state entities in the
// iteration order of the owning registry. The limiter deliberately does not
// sort; registry order keeps bucketing stable without extra work.
type PlayerStateSource func() []*Entity

// PlayerStateFrequencyLimiter replicates a bounded, rolling subset of the
// player-state population each frame. Every record is visited at least once
// every len(buckets) frames regardless of connection count, so per-frame
// bandwidth stays bounded as the player count grows.
type PlayerStateFrequencyLimiter struct {
	// TargetPerFrame is how many player states to return per frame. It does
	// not suppress forced updates.
	TargetPerFrame int

	source  PlayerStateSource
	buckets [][]*Entity
	forced  []*Entity
}

func NewPlayerStateFrequencyLimiter(targetPerFrame int, source PlayerStateSource) *PlayerStateFrequencyLimiter {
	if targetPerFrame <= 0 {
		targetPerFrame = 2
	}
	return &PlayerStateFrequencyLimiter{
		TargetPerFrame: targetPerFrame,
		source:         source,
	}
}

// ForceNetUpdate flags a record for inclusion in every gather until the
// next prepare pass.
func (n *PlayerStateFrequencyLimiter) ForceNetUpdate(e *Entity) {
	if e == nil {
		return
	}
	n.forced = append(n.forced, e)
}

// PrepareForReplication rebuilds the buckets from scratch each tick. This
// is not as efficient as maintaining persistent lists, but it keeps the
// buckets compact without defragmenting when players leave.
func (n *PlayerStateFrequencyLimiter) PrepareForReplication() {
	n.buckets = n.buckets[:0]
	n.forced = n.forced[:0]

	var current []*Entity
	for _, e := range n.source() {
		if len(current) >= n.TargetPerFrame {
			n.buckets = append(n.buckets, current)
			current = nil
		}
		current = append(current, e)
	}
	if len(current) > 0 {
		n.buckets = append(n.buckets, current)
	}
}

// Gather returns bucket frame-mod-bucketCount plus anything flagged for a
// forced update.
func (n *PlayerStateFrequencyLimiter) Gather(p *GatherParams) {
	if len(n.buckets) > 0 {
		p.Out.AddList(n.buckets[int(p.Frame%uint64(len(n.buckets)))])
	}
	if len(n.forced) > 0 {
		p.Out.AddList(n.forced)
	}
}

// BucketCount exposes the current partition size for tests and debugging.
func (n *PlayerStateFrequencyLimiter) BucketCount() int {
	return len(n.buckets)
}
