package hierarchy

import "errors"

// Sentinel errors for the hierarchy service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrNoActiveOverride  = errors.New("no active override")
	ErrInvalidOverride   = errors.New("override must set at least one field")
	ErrInvalidCampaignID = errors.New("invalid campaign id")
)
