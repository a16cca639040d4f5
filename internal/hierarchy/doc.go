// Package hierarchy classifies campaign names into the five-tier hierarchy.
//
// A Matcher evaluates one rule against one name, a Resolver applies an
// ordered rule set and scores the result, and a RuleRepository owns the
// cached rule set loaded from the YAML rule file (mirrored into the
// hierarchy_rules table). Classifier ties the repository and resolver
// together for callers that only have a campaign name.
package hierarchy
