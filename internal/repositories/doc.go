// Package repositories implements SQLite persistence for import tasks and cached track metadata.
//
// Key Implementations:
//   - [ImportTaskRepository] : the import manager's task store; each task is one row holding its JSON payload
//   - [CachedTrackRepository] : metadata for files in the download cache, kept in step by the download manager
//
// Sequence numbers provide stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
