package domain

import (
	"strings"
	"time"
)

// Field names one tier of the hierarchy.
type Field string

const (
	FieldNetwork   Field = "network"
	FieldDomain    Field = "domain"
	FieldPlacement Field = "placement"
	FieldTargeting Field = "targeting"
	FieldSpecial   Field = "special"
)

// Fields lists the hierarchy tiers from broadest to narrowest.
var Fields = []Field{FieldNetwork, FieldDomain, FieldPlacement, FieldTargeting, FieldSpecial}

// Inherit is the rule mapping value meaning "leave this field to another rule".
const Inherit = "inherit"

// Default tier values.
const (
	DefaultNetwork   = "Unknown"
	DefaultDomain    = "Unknown Network"
	DefaultPlacement = "Unknown"
	DefaultTargeting = "Unknown"
	DefaultSpecial   = "Standard"
)

// Hierarchy is the five-tier classification of a campaign.
type Hierarchy struct {
	Network   string `json:"network" yaml:"network" db:"network"`
	Domain    string `json:"domain" yaml:"domain" db:"domain"`
	Placement string `json:"placement" yaml:"placement" db:"placement"`
	Targeting string `json:"targeting" yaml:"targeting" db:"targeting"`
	Special   string `json:"special" yaml:"special" db:"special"`
}

// DefaultHierarchy returns the all-unknown classification.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		Network:   DefaultNetwork,
		Domain:    DefaultDomain,
		Placement: DefaultPlacement,
		Targeting: DefaultTargeting,
		Special:   DefaultSpecial,
	}
}

// DefaultValue returns the default for a single field.
func DefaultValue(f Field) string {
	return DefaultHierarchy().Get(f)
}

// Get returns the value of field f.
func (h Hierarchy) Get(f Field) string {
	switch f {
	case FieldNetwork:
		return h.Network
	case FieldDomain:
		return h.Domain
	case FieldPlacement:
		return h.Placement
	case FieldTargeting:
		return h.Targeting
	case FieldSpecial:
		return h.Special
	}
	return ""
}

// Set assigns field f.
func (h *Hierarchy) Set(f Field, v string) {
	switch f {
	case FieldNetwork:
		h.Network = v
	case FieldDomain:
		h.Domain = v
	case FieldPlacement:
		h.Placement = v
	case FieldTargeting:
		h.Targeting = v
	case FieldSpecial:
		h.Special = v
	}
}

// UnknownCount counts the fields whose value contains "Unknown".
// "Unknown Network" counts.
func (h Hierarchy) UnknownCount() int {
	n := 0
	for _, f := range Fields {
		if strings.Contains(h.Get(f), "Unknown") {
			n++
		}
	}
	return n
}

// IsMapped reports whether the network tier has been resolved.
func (h Hierarchy) IsMapped() bool {
	return h.Network != "" && h.Network != DefaultNetwork
}

// HierarchyRecord is the persisted, override-merged classification of one
// campaign. RuleBased/RuleConfidence keep the last resolver output so the
// merged row can be recomputed when overrides change.
type HierarchyRecord struct {
	CampaignID        int64     `json:"campaign_id"`
	CampaignName      string    `json:"campaign_name"`
	Hierarchy                   // merged values
	MappingConfidence float64   `json:"mapping_confidence"`
	RuleBased         Hierarchy `json:"rule_based"`
	RuleConfidence    float64   `json:"rule_confidence"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HierarchyView is a HierarchyRecord plus the metadata of the override that
// shaped it, as returned by the query surface.
type HierarchyView struct {
	HierarchyRecord
	HasOverride    bool       `json:"has_override"`
	OverrideID     string     `json:"override_id,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverriddenBy   string     `json:"overridden_by,omitempty"`
	OverriddenAt   *time.Time `json:"overridden_at,omitempty"`
}
