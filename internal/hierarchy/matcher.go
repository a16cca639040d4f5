package hierarchy

import (
	"regexp"
	"strings"

	"github.com/maypok86/otter"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

const defaultRegexCacheSize = 512

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// Matcher evaluates rules against campaign names. Compiled regexes, and
// compile failures, are kept in a bounded cache keyed by pattern.
type Matcher struct {
	cache otter.Cache[string, compiledPattern]
}

// NewMatcher creates a Matcher whose regex cache holds up to cacheSize patterns.
func NewMatcher(cacheSize int) *Matcher {
	if cacheSize <= 0 {
		cacheSize = defaultRegexCacheSize
	}
	cache, err := otter.MustBuilder[string, compiledPattern](cacheSize).
		Cost(func(_ string, _ compiledPattern) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("hierarchy: failed to create regex cache: " + err.Error())
	}
	return &Matcher{cache: cache}
}

// Matches reports whether name satisfies rule. Literal pattern types compare
// lowercased strings. Regex patterns are searched, unanchored, against the
// original name with a case-insensitive flag. Invalid regexes and unknown
// pattern types never match and are logged.
func (m *Matcher) Matches(name string, rule domain.Rule) bool {
	switch rule.PatternType {
	case domain.PatternExact:
		return strings.ToLower(name) == strings.ToLower(rule.PatternValue)
	case domain.PatternContains:
		return strings.Contains(strings.ToLower(name), strings.ToLower(rule.PatternValue))
	case domain.PatternStartsWith:
		return strings.HasPrefix(strings.ToLower(name), strings.ToLower(rule.PatternValue))
	case domain.PatternEndsWith:
		return strings.HasSuffix(strings.ToLower(name), strings.ToLower(rule.PatternValue))
	case domain.PatternRegex:
		re, err := m.compile(rule.PatternValue)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	default:
		logger.Warn("hierarchy: unknown pattern type",
			"rule", rule.Name, "pattern_type", string(rule.PatternType))
		return false
	}
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if c, ok := m.cache.Get(pattern); ok {
		return c.re, c.err
	}
	re, err := CompilePattern(pattern)
	if err != nil {
		logger.Warn("hierarchy: invalid regex pattern", "pattern", pattern, "error", err)
	}
	m.cache.Set(pattern, compiledPattern{re: re, err: err})
	return re, err
}

// CompilePattern compiles a rule regex with the case-insensitive flag.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
