package repgraph

import "sync/atomic"

// Stats counts graph activity for the diagnostics endpoint and the
// per-tick log line. Counters are atomics so the serving goroutine can read
// them while the tick goroutine writes.
type Stats struct {
	Gathers          atomic.Uint64
	EntitiesGathered atomic.Uint64
	GridMigrations   atomic.Uint64
	PVSMigrations    atomic.Uint64
	EntitiesRouted   atomic.Uint64
	EntitiesRemoved  atomic.Uint64
}

// StatsSnapshot is the JSON form of the counters.
type StatsSnapshot struct {
	Gathers          uint64 `json:"gathers"`
	EntitiesGathered uint64 `json:"entitiesGathered"`
	GridMigrations   uint64 `json:"gridMigrations"`
	PVSMigrations    uint64 `json:"pvsMigrations"`
	EntitiesRouted   uint64 `json:"entitiesRouted"`
	EntitiesRemoved  uint64 `json:"entitiesRemoved"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Gathers:          s.Gathers.Load(),
		EntitiesGathered: s.EntitiesGathered.Load(),
		GridMigrations:   s.GridMigrations.Load(),
		PVSMigrations:    s.PVSMigrations.Load(),
		EntitiesRouted:   s.EntitiesRouted.Load(),
		EntitiesRemoved:  s.EntitiesRemoved.Load(),
	}
}
