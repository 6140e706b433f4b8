// Package models defines the data shared by the acquisition and caching pipeline.
//
// The package contains two categories of types:
//
// 1. Provider DTOs: lightweight structs exchanged with external collaborators
//   - [SearchResult] : a candidate returned by a search provider
//   - [SourceTrack] : an external track reference with a target duration
//
// 2. Import state: the persisted, resumable representation of a bulk import
//   - [ImportTask] : a named import with per-track results and counters
//   - [TrackResult] : the outcome of resolving a single [SourceTrack]
//
// [TaskStatus], [TrackStatus] and [AudioQuality] are closed enumerations. Unknown values
// are rejected when decoding so persisted state can never hold an unrepresentable status.
package models
