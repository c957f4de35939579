package repgraph

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *PolicyResolver {
	return NewPolicyResolver(testTypes(), testLogger().WithField("node", "policy"))
}

func TestClassifyRoutesByFlags(t *testing.T) {
	r := newTestResolver()

	cases := []struct {
		typeID TypeID
		want   Policy
	}{
		{"Actor", PolicyNotRouted},
		{"Character", PolicyPrecomputedVisibility},
		{"HeroCharacter", PolicyPrecomputedVisibility},
		{"PlayerController", PolicyNotRouted},
		{"PlayerState", PolicyRelevantAllConnections},
		{"Projectile", PolicySpatializeDynamic},
		{"GameState", PolicyRelevantAllConnections},
		{"NeverRegistered", PolicyNotRouted},
	}
	for _, tc := range cases {
		if got := r.Classify(tc.typeID); got != tc.want {
			t.Fatalf("Classify(%s) = %s, want %s", tc.typeID, got, tc.want)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	r := newTestResolver()
	first := r.Classify("Projectile")
	second := r.Classify("Projectile")
	if first != second {
		t.Fatalf("repeat classification changed: %s then %s", first, second)
	}
}

func TestClassifyReusesParentPolicyForIdenticalFlags(t *testing.T) {
	r := newTestResolver()
	if got := r.Classify("Rocket"); got != PolicySpatializeDynamic {
		t.Fatalf("Rocket policy = %s, want %s", got, PolicySpatializeDynamic)
	}
	// The parent was classified along the way and memoized.
	if _, ok := r.cache["Projectile"]; !ok {
		t.Fatalf("expected parent policy to be memoized")
	}
}

func TestOverrideWins(t *testing.T) {
	r := newTestResolver()
	r.SetOverride("Projectile", PolicyNotRouted)
	if got := r.Classify("Projectile"); got != PolicyNotRouted {
		t.Fatalf("overridden policy = %s, want NotRouted", got)
	}
}

func TestOverrideInconsistencyWarns(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := NewPolicyResolver(testTypes(), logger.WithField("node", "policy"))

	// PlayerState is always-relevant; spatializing it is a configuration
	// inconsistency that warns but still applies.
	r.SetOverride("PlayerState", PolicySpatializeDynamic)
	require.Equal(t, PolicySpatializeDynamic, r.Classify("PlayerState"))

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	require.True(t, warned, "expected a warning for the inconsistent override")
}

func TestParsePolicyRoundTrip(t *testing.T) {
	for _, name := range []string{
		"NotRouted", "RelevantAllConnections", "Spatialize_Static",
		"Spatialize_Dynamic", "Spatialize_Dormancy", "PrecomputedVisibility",
	} {
		policy, ok := ParsePolicy(name)
		if !ok {
			t.Fatalf("ParsePolicy(%q) not found", name)
		}
		if policy.String() != name {
			t.Fatalf("round trip %q -> %s", name, policy)
		}
	}
	if _, ok := ParsePolicy("Bogus"); ok {
		t.Fatalf("expected unknown policy to fail")
	}
}

func TestReplicationPeriodForFrequency(t *testing.T) {
	if got := ReplicationPeriodForFrequency(30, 30); got != 1 {
		t.Fatalf("30Hz at 30 ticks = %d frames, want 1", got)
	}
	if got := ReplicationPeriodForFrequency(10, 30); got != 3 {
		t.Fatalf("10Hz at 30 ticks = %d frames, want 3", got)
	}
	if got := ReplicationPeriodForFrequency(0, 30); got != 1 {
		t.Fatalf("zero frequency = %d frames, want 1", got)
	}
}
