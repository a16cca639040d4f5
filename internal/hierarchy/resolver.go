package hierarchy

import (
	"sort"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// Confidence scoring constants.
const (
	MinConfidence          = 0.1
	MaxConfidence          = 1.0
	perRuleConfidence      = 0.2
	maxBaseConfidence      = 0.8
	exactMatchBonus        = 0.2
	highPriorityBonus      = 0.1
	unknownFieldsPenalty   = 0.2
	unknownPenaltyMinCount = 3

	// DefaultHighPriorityThreshold is the priority from which a matched rule
	// earns the high-priority bonus.
	DefaultHighPriorityThreshold = 900
)

// Resolution is the rule-based classification of one campaign name.
type Resolution struct {
	Hierarchy    domain.Hierarchy `json:"hierarchy"`
	MatchedRules []domain.Rule    `json:"matched_rules"`
	Confidence   float64          `json:"confidence"`
}

// Resolver applies an ordered rule set to campaign names.
type Resolver struct {
	matcher               *Matcher
	highPriorityThreshold int
}

// NewResolver creates a Resolver. A threshold <= 0 selects
// DefaultHighPriorityThreshold.
func NewResolver(m *Matcher, highPriorityThreshold int) *Resolver {
	if m == nil {
		m = NewMatcher(0)
	}
	if highPriorityThreshold <= 0 {
		highPriorityThreshold = DefaultHighPriorityThreshold
	}
	return &Resolver{matcher: m, highPriorityThreshold: highPriorityThreshold}
}

// Matcher returns the resolver's matcher.
func (r *Resolver) Matcher() *Matcher { return r.matcher }

// Resolve classifies name against rules. Rules are evaluated in descending
// priority. A matching rule writes a field only while it still holds its
// default value, so the first non-inherit, non-default value wins and a
// rule that maps a field to its default leaves it open for lower rules.
// An empty rule set yields the default hierarchy at minimum confidence.
func (r *Resolver) Resolve(name string, rules []domain.Rule) Resolution {
	res := Resolution{Hierarchy: domain.DefaultHierarchy(), MatchedRules: []domain.Rule{}, Confidence: MinConfidence}
	if len(rules) == 0 {
		return res
	}

	ordered := SortByPriority(rules)

	for _, rule := range ordered {
		if !r.matcher.Matches(name, rule) {
			continue
		}
		res.MatchedRules = append(res.MatchedRules, rule)
		for _, f := range domain.Fields {
			if res.Hierarchy.Get(f) != domain.DefaultValue(f) {
				continue
			}
			v := rule.Mapping.Get(f)
			if v == "" || v == domain.Inherit {
				continue
			}
			res.Hierarchy.Set(f, v)
		}
	}

	res.Confidence = Confidence(res.MatchedRules, res.Hierarchy, r.highPriorityThreshold)
	return res
}

// SortByPriority returns a copy of rules ordered by descending priority.
// Equal priorities keep their input order.
func SortByPriority(rules []domain.Rule) []domain.Rule {
	out := make([]domain.Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Confidence scores a resolution:
// min(0.8, 0.2 per matched rule), +0.2 if any exact match, +0.1 if any match
// at or above the high-priority threshold, -0.2 when three or more fields
// still read "Unknown", clamped to [0.1, 1.0]. No matches scores 0.1.
func Confidence(matched []domain.Rule, h domain.Hierarchy, highPriorityThreshold int) float64 {
	if len(matched) == 0 {
		return MinConfidence
	}

	score := perRuleConfidence * float64(len(matched))
	if score > maxBaseConfidence {
		score = maxBaseConfidence
	}

	var exact, high bool
	for _, rule := range matched {
		if rule.PatternType == domain.PatternExact {
			exact = true
		}
		if rule.Priority >= highPriorityThreshold {
			high = true
		}
	}
	if exact {
		score += exactMatchBonus
	}
	if high {
		score += highPriorityBonus
	}
	if h.UnknownCount() >= unknownPenaltyMinCount {
		score -= unknownFieldsPenalty
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}
