// Package domain defines the value types shared by the warehouse packages:
// campaigns and their hourly metrics, the five-tier hierarchy, classification
// rules, manual overrides and run bookkeeping.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB/YAML tags are allowed (they're metadata, not behavior)
//   - Pure helper methods are allowed
package domain
