package domain

import "time"

// PatternType is the matching discipline of a rule.
type PatternType string

const (
	PatternExact      PatternType = "exact"
	PatternContains   PatternType = "contains"
	PatternStartsWith PatternType = "starts_with"
	PatternEndsWith   PatternType = "ends_with"
	PatternRegex      PatternType = "regex"
)

// PatternTypes lists every supported pattern type.
var PatternTypes = []PatternType{PatternExact, PatternContains, PatternStartsWith, PatternEndsWith, PatternRegex}

// Valid reports whether p is one of the supported pattern types.
func (p PatternType) Valid() bool {
	for _, t := range PatternTypes {
		if p == t {
			return true
		}
	}
	return false
}

// Rule maps campaign names matching a pattern to hierarchy values.
// Mapping fields may hold Inherit.
type Rule struct {
	Name         string      `json:"name" yaml:"name"`
	Priority     int         `json:"priority" yaml:"priority"`
	PatternType  PatternType `json:"pattern_type" yaml:"pattern_type"`
	PatternValue string      `json:"pattern_value" yaml:"pattern_value"`
	Mapping      Hierarchy   `json:"mapping" yaml:"mapping"`
	Active       bool        `json:"active" yaml:"active"`
}

// FallbackMaxPriority is the upper bound of the fallback priority band.
const FallbackMaxPriority = 10

// IsFallback reports whether the rule sits in the fallback band.
func (r Rule) IsFallback() bool {
	return r.Priority <= FallbackMaxPriority
}

// StoredRule is a rule as mirrored into the hierarchy_rules table.
type StoredRule struct {
	Rule
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
