package repgraph

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// PolicyResolver classifies entity types into routing policies. Results are
// memoized per type, so the flag comparison against the supertype runs at
// most once for each type in a hierarchy.
type PolicyResolver struct {
	types     *TypeTable
	overrides map[TypeID]Policy
	cache     map[TypeID]Policy
	log       *logrus.Entry
}

func NewPolicyResolver(types *TypeTable, log *logrus.Entry) *PolicyResolver {
	return &PolicyResolver{
		types:     types,
		overrides: make(map[TypeID]Policy),
		cache:     make(map[TypeID]Policy),
		log:       log,
	}
}

// SetOverride pins a type to an explicit policy. A type whose defaults say
// always-relevant but whose override routes it to a spatialized node is a
// configuration inconsistency; the override still wins.
func (r *PolicyResolver) SetOverride(id TypeID, policy Policy) {
	if policy.Spatialized() {
		if td := r.types.Lookup(id); td != nil && td.AlwaysRelevant {
			r.log.WithFields(logrus.Fields{
				"type":   id,
				"policy": policy.String(),
			}).Warn("always-relevant type overridden into a spatialized node")
		}
	}
	r.overrides[id] = policy
	delete(r.cache, id)
}

// Classify returns the routing policy for a type. It is pure for a fixed
// configuration; the only side effect is the memo cache.
func (r *PolicyResolver) Classify(id TypeID) Policy {
	if policy, ok := r.cache[id]; ok {
		return policy
	}
	policy := r.classify(id)
	r.cache[id] = policy
	return policy
}

func (r *PolicyResolver) classify(id TypeID) Policy {
	if policy, ok := r.overrides[id]; ok {
		return policy
	}

	td := r.types.Lookup(id)
	if td == nil {
		return PolicyNotRouted
	}

	// Hero characters go through the precomputed-visibility grid.
	if r.types.HasAncestorCategory(id, CategoryCharacter) {
		return PolicyPrecomputedVisibility
	}

	if !td.Replicated {
		return PolicyNotRouted
	}

	// Only handle this type if it differs from its supertype; otherwise the
	// parent's cached policy covers the whole subtree.
	if parent := r.types.Lookup(td.Parent); parent != nil && relevancyFlagsEqual(td, parent) {
		return r.Classify(td.Parent)
	}

	if !td.AlwaysRelevant && !td.OnlyRelevantToOwner && !td.UseOwnerRelevancy {
		return PolicySpatializeDynamic
	}
	if td.AlwaysRelevant && !td.OnlyRelevantToOwner {
		return PolicyRelevantAllConnections
	}
	return PolicyNotRouted
}

// LogPolicies prints the memoized routing table, skipping types whose
// policy matches their parent's.
func (r *PolicyResolver) LogPolicies() {
	ids := make([]TypeID, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		policy := r.cache[id]
		if td := r.types.Lookup(id); td != nil && td.Parent != "" {
			if parentPolicy, ok := r.cache[td.Parent]; ok && parentPolicy == policy {
				continue
			}
		}
		r.log.WithFields(logrus.Fields{
			"type":   id,
			"policy": policy.String(),
		}).Info("routing policy")
	}
}
