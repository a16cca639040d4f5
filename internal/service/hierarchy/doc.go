// Package hierarchy implements the override store and the override-aware
// merge/upsert protocol for campaign hierarchy records.
//
// Every write to campaign_hierarchy goes through Service: the automated
// resolution pass (ResolveAll / UpsertHierarchy) and the manual correction
// path (SetOverride / DeactivateOverride) both read the campaign's active
// override inside the same transaction as the write, so a resync can never
// erase a human correction.
//
// Repository implementations live in repository/sqlstore/.
package hierarchy
