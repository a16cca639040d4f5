package hierarchy

import (
	"context"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// Classifier resolves campaign names against the repository's current rule set.
type Classifier struct {
	rules    *RuleRepository
	resolver *Resolver
}

// NewClassifier creates a Classifier.
func NewClassifier(rules *RuleRepository, resolver *Resolver) *Classifier {
	return &Classifier{rules: rules, resolver: resolver}
}

// Classify resolves one name.
func (c *Classifier) Classify(ctx context.Context, name string) Resolution {
	return c.resolver.Resolve(name, c.rules.Rules(ctx))
}

// Snapshot returns the current rule set and a resolve function bound to it,
// so a batch pass classifies every campaign against the same rules.
func (c *Classifier) Snapshot(ctx context.Context) ([]domain.Rule, func(name string) Resolution) {
	rules := c.rules.Rules(ctx)
	return rules, func(name string) Resolution {
		return c.resolver.Resolve(name, rules)
	}
}

// Repository returns the underlying rule repository.
func (c *Classifier) Repository() *RuleRepository { return c.rules }

// Stats returns the rule repository's summary.
func (c *Classifier) Stats() RuleStats { return c.rules.Stats() }
