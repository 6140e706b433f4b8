// Package tasks runs background playlist imports.
//
// A [Manager] owns every [models.ImportTask] and a single sequential processor. Tasks are drained
// in FIFO order and, within a task, tracks are resolved one at a time with a fixed delay between
// them so that imports never compete with foreground playback for the download pool.
//
// # Per-track work
//
// Each source track is turned into a search query (primary artist, no featured artists, no
// punctuation), searched with a timeout and resolved with [match.SelectBest]. The task status is
// checked before every track: pausing or cancelling takes effect between tracks, never in the
// middle of one.
//
// # Persistence
//
// The task list is upserted into a [Store] after every mutation; cancelled and removed tasks are
// deleted explicitly so processes sharing a store never drop each other's rows. Write failures are
// logged and never block the in-memory change. Tasks persisted as running are loaded as paused and
// flagged interrupted. The flag is stored with the task, so whichever process next calls
// [Manager.Start] resumes them after a delay, even if an earlier process only listed them.
//
// # Events
//
// Observers receive an [Event] for every change via [Manager.Subscribe]. Sends are non-blocking;
// a slow subscriber misses events rather than stalling the processor.
package tasks
