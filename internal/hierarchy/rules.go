package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// RuleFile is a parsed and validated rule document.
type RuleFile struct {
	Version string        `yaml:"version" json:"version"`
	Rules   []domain.Rule `yaml:"rules" json:"rules"`
}

// Active returns the active rules ordered by descending priority.
func (f *RuleFile) Active() []domain.Rule {
	var out []domain.Rule
	for _, r := range f.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return SortByPriority(out)
}

// ValidationError carries every problem found in a rule set. A rule set
// with a ValidationError is never activated.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	src := e.Source
	if src == "" {
		src = "rule set"
	}
	return fmt.Sprintf("%s: %d validation problem(s): %s", src, len(e.Problems), strings.Join(e.Problems, "; "))
}

var requiredRuleKeys = []string{"name", "priority", "pattern_type", "pattern_value", "mapping", "active"}

// ParseRuleFile decodes and validates a YAML rule document. Structural
// problems (missing keys, wrong types) and semantic problems (duplicate
// priorities, bad regex, missing fallback) are all reported together in a
// *ValidationError.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("invalid YAML: %v", err)}}
	}

	var problems []string
	if doc == nil {
		return nil, &ValidationError{Problems: []string{"document is empty"}}
	}

	rf := &RuleFile{}
	if v, ok := doc["version"]; !ok || v == nil {
		problems = append(problems, "missing 'version' field")
	} else {
		rf.Version = fmt.Sprint(v)
	}

	rawRules, ok := doc["rules"]
	if !ok {
		problems = append(problems, "missing 'rules' field")
		return nil, &ValidationError{Problems: problems}
	}
	list, ok := rawRules.([]interface{})
	if !ok {
		problems = append(problems, "'rules' must be a list")
		return nil, &ValidationError{Problems: problems}
	}
	if len(list) == 0 {
		problems = append(problems, "'rules' must not be empty")
		return nil, &ValidationError{Problems: problems}
	}

	structurallyValid := true
	for i, item := range list {
		rule, ruleProblems := decodeRule(i, item)
		if len(ruleProblems) > 0 {
			problems = append(problems, ruleProblems...)
			structurallyValid = false
			continue
		}
		rf.Rules = append(rf.Rules, rule)
	}

	if structurallyValid {
		problems = append(problems, ValidateRules(rf.Rules)...)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return rf, nil
}

func decodeRule(i int, item interface{}) (domain.Rule, []string) {
	var rule domain.Rule
	m, ok := item.(map[string]interface{})
	if !ok {
		return rule, []string{fmt.Sprintf("rule %d: must be a mapping", i)}
	}

	label := fmt.Sprintf("rule %d", i)
	if name, ok := m["name"].(string); ok && name != "" {
		label = fmt.Sprintf("rule %d (%s)", i, name)
	}

	var problems []string
	for _, key := range requiredRuleKeys {
		if _, ok := m[key]; !ok {
			problems = append(problems, fmt.Sprintf("%s: missing required field '%s'", label, key))
		}
	}
	if len(problems) > 0 {
		return rule, problems
	}

	name, ok := m["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		problems = append(problems, fmt.Sprintf("%s: 'name' must be a non-empty string", label))
	}
	rule.Name = name

	switch p := m["priority"].(type) {
	case int:
		if p <= 0 {
			problems = append(problems, fmt.Sprintf("%s: 'priority' must be a positive integer", label))
		}
		rule.Priority = p
	default:
		problems = append(problems, fmt.Sprintf("%s: 'priority' must be a positive integer", label))
	}

	pt, ok := m["pattern_type"].(string)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s: 'pattern_type' must be a string", label))
	}
	rule.PatternType = domain.PatternType(pt)

	pv, ok := m["pattern_value"].(string)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s: 'pattern_value' must be a string", label))
	}
	rule.PatternValue = pv

	active, ok := m["active"].(bool)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s: 'active' must be a boolean", label))
	}
	rule.Active = active

	mapping, ok := m["mapping"].(map[string]interface{})
	if !ok {
		problems = append(problems, fmt.Sprintf("%s: 'mapping' must be a mapping", label))
		return rule, problems
	}
	for _, f := range domain.Fields {
		raw, present := mapping[string(f)]
		if !present {
			problems = append(problems, fmt.Sprintf("%s: mapping missing field '%s'", label, f))
			continue
		}
		s, ok := raw.(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: mapping field '%s' must be a string", label, f))
			continue
		}
		rule.Mapping.Set(f, s)
	}
	return rule, problems
}

// ValidateRules checks a typed rule set: unique names and priorities,
// supported pattern types, compilable regexes, complete mappings and an
// active rule in the fallback band (priority <= 10).
func ValidateRules(rules []domain.Rule) []string {
	var problems []string
	if len(rules) == 0 {
		return []string{"rule set is empty"}
	}

	names := make(map[string]int)
	priorities := make(map[int]string)
	hasFallback := false

	for i, r := range rules {
		label := fmt.Sprintf("rule %d (%s)", i, r.Name)

		if strings.TrimSpace(r.Name) == "" {
			problems = append(problems, fmt.Sprintf("rule %d: 'name' must be a non-empty string", i))
		} else if prev, dup := names[r.Name]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate name (also rule %d)", label, prev))
		} else {
			names[r.Name] = i
		}

		if r.Priority <= 0 {
			problems = append(problems, fmt.Sprintf("%s: 'priority' must be a positive integer", label))
		} else if other, dup := priorities[r.Priority]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate priority %d (also %s)", label, r.Priority, other))
		} else {
			priorities[r.Priority] = r.Name
		}

		if !r.PatternType.Valid() {
			problems = append(problems, fmt.Sprintf("%s: invalid pattern_type '%s'", label, r.PatternType))
		}
		if r.PatternType == domain.PatternRegex {
			if _, err := CompilePattern(r.PatternValue); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid regex '%s': %v", label, r.PatternValue, err))
			}
		}
		if r.PatternValue == "" {
			problems = append(problems, fmt.Sprintf("%s: 'pattern_value' must not be empty", label))
		}

		for _, f := range domain.Fields {
			if strings.TrimSpace(r.Mapping.Get(f)) == "" {
				problems = append(problems, fmt.Sprintf("%s: mapping field '%s' must be a non-empty string", label, f))
			}
		}

		if r.Active && r.IsFallback() {
			hasFallback = true
		}
	}

	if !hasFallback {
		problems = append(problems, fmt.Sprintf("no active fallback rule with priority <= %d", domain.FallbackMaxPriority))
	}
	return problems
}

// MarshalRuleFile renders a rule set back to YAML, highest priority first.
func MarshalRuleFile(rf *RuleFile) ([]byte, error) {
	out := RuleFile{Version: rf.Version, Rules: make([]domain.Rule, len(rf.Rules))}
	copy(out.Rules, rf.Rules)
	sort.SliceStable(out.Rules, func(i, j int) bool { return out.Rules[i].Priority > out.Rules[j].Priority })
	return yaml.Marshal(out)
}
