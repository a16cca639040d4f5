package hierarchy

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

func fallbackRule() domain.Rule {
	return domain.Rule{
		Name:         "Universal Fallback",
		Priority:     10,
		PatternType:  domain.PatternRegex,
		PatternValue: ".*",
		Mapping:      domain.DefaultHierarchy(),
		Active:       true,
	}
}

func pornhubRule() domain.Rule {
	return domain.Rule{
		Name:         "Pornhub Network",
		Priority:     1000,
		PatternType:  domain.PatternStartsWith,
		PatternValue: "pornhub",
		Mapping: domain.Hierarchy{
			Network:   "Pornhub",
			Domain:    "Adult Video Platform",
			Placement: domain.Inherit,
			Targeting: domain.Inherit,
			Special:   domain.Inherit,
		},
		Active: true,
	}
}

func TestResolve_PornhubScenario(t *testing.T) {
	r := NewResolver(NewMatcher(0), 900)

	res := r.Resolve("PornhubM_Ava_Lounge", []domain.Rule{pornhubRule(), fallbackRule()})

	assert.Equal(t, domain.Hierarchy{
		Network:   "Pornhub",
		Domain:    "Adult Video Platform",
		Placement: "Unknown",
		Targeting: "Unknown",
		Special:   "Standard",
	}, res.Hierarchy)
	require.Len(t, res.MatchedRules, 2)
	assert.Equal(t, "Pornhub Network", res.MatchedRules[0].Name)
	assert.Equal(t, "Universal Fallback", res.MatchedRules[1].Name)
	assert.GreaterOrEqual(t, res.Confidence, 0.3)
	// 2 rules = 0.4, high priority +0.1, two unknown fields so no penalty.
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestResolve_OrderIndependent(t *testing.T) {
	r := NewResolver(nil, 0)
	a := r.Resolve("PornhubM_Ava_Lounge", []domain.Rule{fallbackRule(), pornhubRule()})
	b := r.Resolve("PornhubM_Ava_Lounge", []domain.Rule{pornhubRule(), fallbackRule()})
	assert.Equal(t, a.Hierarchy, b.Hierarchy)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, "Pornhub Network", a.MatchedRules[0].Name)
}

func TestResolve_EmptyRuleSet(t *testing.T) {
	r := NewResolver(nil, 0)
	res := r.Resolve("Anything", nil)

	assert.Equal(t, domain.DefaultHierarchy(), res.Hierarchy)
	assert.Empty(t, res.MatchedRules)
	assert.NotNil(t, res.MatchedRules)
	assert.Equal(t, MinConfidence, res.Confidence)
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewResolver(nil, 0)
	res := r.Resolve("Bumble_US", []domain.Rule{pornhubRule()})

	assert.Equal(t, domain.DefaultHierarchy(), res.Hierarchy)
	assert.Empty(t, res.MatchedRules)
	assert.Equal(t, MinConfidence, res.Confidence)
}

func TestResolve_HigherPriorityFieldNeverOverwritten(t *testing.T) {
	high := domain.Rule{
		Name: "high", Priority: 500, PatternType: domain.PatternContains, PatternValue: "reddit",
		Mapping: domain.Hierarchy{Network: "Reddit", Domain: domain.Inherit, Placement: "Feed", Targeting: domain.Inherit, Special: domain.Inherit},
		Active:  true,
	}
	low := domain.Rule{
		Name: "low", Priority: 200, PatternType: domain.PatternContains, PatternValue: "reddit",
		Mapping: domain.Hierarchy{Network: "Imgur", Domain: "Social", Placement: "Banner", Targeting: "US", Special: "Promo"},
		Active:  true,
	}
	r := NewResolver(nil, 0)
	res := r.Resolve("reddit_feed_us", []domain.Rule{low, high})

	assert.Equal(t, "Reddit", res.Hierarchy.Network)
	assert.Equal(t, "Feed", res.Hierarchy.Placement)
	assert.Equal(t, "Social", res.Hierarchy.Domain)
	assert.Equal(t, "US", res.Hierarchy.Targeting)
	assert.Equal(t, "Promo", res.Hierarchy.Special)
}

func TestResolve_DefaultValueLeavesFieldOpen(t *testing.T) {
	high := domain.Rule{
		Name: "high", Priority: 500, PatternType: domain.PatternContains, PatternValue: "foo",
		Mapping: domain.Hierarchy{Network: domain.DefaultNetwork, Domain: domain.Inherit, Placement: domain.Inherit, Targeting: domain.Inherit, Special: domain.DefaultSpecial},
		Active:  true,
	}
	low := domain.Rule{
		Name: "low", Priority: 400, PatternType: domain.PatternContains, PatternValue: "bar",
		Mapping: domain.Hierarchy{Network: "Acme", Domain: domain.Inherit, Placement: domain.Inherit, Targeting: domain.Inherit, Special: "VIP"},
		Active:  true,
	}
	r := NewResolver(nil, 0)
	res := r.Resolve("foo_bar", []domain.Rule{high, low})

	require.Len(t, res.MatchedRules, 2)
	assert.Equal(t, "Acme", res.Hierarchy.Network)
	assert.Equal(t, "VIP", res.Hierarchy.Special)
	assert.Equal(t, domain.DefaultDomain, res.Hierarchy.Domain)
}

func TestResolve_InvalidRegexDegradesToNoMatch(t *testing.T) {
	bad := domain.Rule{
		Name: "broken", Priority: 800, PatternType: domain.PatternRegex, PatternValue: "(",
		Mapping: domain.Hierarchy{Network: "Broken", Domain: "x", Placement: "x", Targeting: "x", Special: "x"},
		Active:  true,
	}
	r := NewResolver(nil, 0)
	res := r.Resolve("anything", []domain.Rule{bad, fallbackRule()})

	assert.Equal(t, domain.DefaultHierarchy(), res.Hierarchy)
	require.Len(t, res.MatchedRules, 1)
	assert.Equal(t, "Universal Fallback", res.MatchedRules[0].Name)
}

func TestConfidence(t *testing.T) {
	mapped := domain.Hierarchy{Network: "Tinder", Domain: "Dating", Placement: "Feed", Targeting: "US", Special: "Standard"}
	mk := func(pt domain.PatternType, priority int) domain.Rule {
		return domain.Rule{PatternType: pt, Priority: priority}
	}

	tests := []struct {
		name    string
		matched []domain.Rule
		h       domain.Hierarchy
		want    float64
	}{
		{"none", nil, mapped, 0.1},
		{"one contains", []domain.Rule{mk(domain.PatternContains, 100)}, mapped, 0.2},
		{"one exact", []domain.Rule{mk(domain.PatternExact, 100)}, mapped, 0.4},
		{"high priority", []domain.Rule{mk(domain.PatternContains, 900)}, mapped, 0.3},
		{"just below threshold", []domain.Rule{mk(domain.PatternContains, 899)}, mapped, 0.2},
		{"base capped at 0.8", []domain.Rule{
			mk(domain.PatternContains, 1), mk(domain.PatternContains, 2), mk(domain.PatternContains, 3),
			mk(domain.PatternContains, 4), mk(domain.PatternContains, 5),
		}, mapped, 0.8},
		{"clamped at 1.0", []domain.Rule{
			mk(domain.PatternExact, 1000), mk(domain.PatternContains, 2), mk(domain.PatternContains, 3),
			mk(domain.PatternContains, 4),
		}, mapped, 1.0},
		{"unknown penalty", []domain.Rule{mk(domain.PatternContains, 10)}, domain.DefaultHierarchy(), 0.1},
		{"unknown penalty with bonuses", []domain.Rule{mk(domain.PatternExact, 950), mk(domain.PatternRegex, 10)}, domain.DefaultHierarchy(), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.matched, tt.h, 900), 1e-9)
		})
	}
}

func TestConfidenceThresholdIsConfigurable(t *testing.T) {
	mapped := domain.Hierarchy{Network: "A", Domain: "B", Placement: "C", Targeting: "D", Special: "E"}
	matched := []domain.Rule{{PatternType: domain.PatternContains, Priority: 500}}
	assert.InDelta(t, 0.2, Confidence(matched, mapped, 900), 1e-9)
	assert.InDelta(t, 0.3, Confidence(matched, mapped, 500), 1e-9)
}

// Randomised rule sets: the result is always a complete hierarchy with
// confidence inside bounds, and each field takes the first non-default
// value among the matches.
func TestResolve_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tokens := []string{"pornhub", "reddit", "tinder", "ava", "us", "uk", "feed", "banner"}
	values := []string{domain.Inherit, "Alpha", "Beta", "Unknown", "Gamma"}
	types := domain.PatternTypes
	r := NewResolver(nil, 900)

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(6)
		perm := rng.Perm(1000)
		var rules []domain.Rule
		for i := 0; i < n; i++ {
			var m domain.Hierarchy
			for _, f := range domain.Fields {
				m.Set(f, values[rng.Intn(len(values))])
			}
			rules = append(rules, domain.Rule{
				Name:         fmt.Sprintf("r%d", i),
				Priority:     perm[i] + 1,
				PatternType:  types[rng.Intn(len(types))],
				PatternValue: tokens[rng.Intn(len(tokens))],
				Mapping:      m,
				Active:       true,
			})
		}
		name := tokens[rng.Intn(len(tokens))] + "_" + tokens[rng.Intn(len(tokens))]

		res := r.Resolve(name, rules)

		for _, f := range domain.Fields {
			assert.NotEmpty(t, res.Hierarchy.Get(f))
		}
		assert.GreaterOrEqual(t, res.Confidence, MinConfidence)
		assert.LessOrEqual(t, res.Confidence, MaxConfidence)

		for _, f := range domain.Fields {
			want := domain.DefaultValue(f)
			for _, m := range res.MatchedRules {
				if v := m.Mapping.Get(f); v != domain.Inherit && v != domain.DefaultValue(f) {
					want = v
					break
				}
			}
			assert.Equal(t, want, res.Hierarchy.Get(f), "field %s must come from the first non-default match", f)
		}
		for i := 1; i < len(res.MatchedRules); i++ {
			assert.Greater(t, res.MatchedRules[i-1].Priority, res.MatchedRules[i].Priority)
		}
	}
}

func TestPriorityBucket(t *testing.T) {
	assert.Equal(t, "0-99", PriorityBucket(10))
	assert.Equal(t, "900-999", PriorityBucket(950))
	assert.Equal(t, "1000-1099", PriorityBucket(1000))
}
