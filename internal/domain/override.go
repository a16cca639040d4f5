package domain

import "time"

// OverrideFields are the optional values of a manual correction. A nil
// field has no opinion and falls through to the rule-based value.
type OverrideFields struct {
	Network   *string `json:"network"`
	Domain    *string `json:"domain"`
	Placement *string `json:"placement"`
	Targeting *string `json:"targeting"`
	Special   *string `json:"special"`
}

// Get returns the override value for f, or nil.
func (o OverrideFields) Get(f Field) *string {
	switch f {
	case FieldNetwork:
		return o.Network
	case FieldDomain:
		return o.Domain
	case FieldPlacement:
		return o.Placement
	case FieldTargeting:
		return o.Targeting
	case FieldSpecial:
		return o.Special
	}
	return nil
}

// Set assigns the override value for f. A nil v clears it.
func (o *OverrideFields) Set(f Field, v *string) {
	switch f {
	case FieldNetwork:
		o.Network = v
	case FieldDomain:
		o.Domain = v
	case FieldPlacement:
		o.Placement = v
	case FieldTargeting:
		o.Targeting = v
	case FieldSpecial:
		o.Special = v
	}
}

// Empty reports whether no field is set.
func (o OverrideFields) Empty() bool {
	for _, f := range Fields {
		if o.Get(f) != nil {
			return false
		}
	}
	return true
}

// Apply layers the non-nil fields over base.
func (o OverrideFields) Apply(base Hierarchy) Hierarchy {
	out := base
	for _, f := range Fields {
		if v := o.Get(f); v != nil {
			out.Set(f, *v)
		}
	}
	return out
}

// FieldsFrom returns OverrideFields with every field set from h.
func FieldsFrom(h Hierarchy) OverrideFields {
	return OverrideFields{
		Network:   StringPtr(h.Network),
		Domain:    StringPtr(h.Domain),
		Placement: StringPtr(h.Placement),
		Targeting: StringPtr(h.Targeting),
		Special:   StringPtr(h.Special),
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Override is one entry of a campaign's append-only override log. At most
// one entry per campaign is active.
type Override struct {
	ID         string `json:"id"`
	CampaignID int64  `json:"campaign_id"`
	OverrideFields
	Reason       string    `json:"override_reason"`
	OverriddenBy string    `json:"overridden_by"`
	OverriddenAt time.Time `json:"overridden_at"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
