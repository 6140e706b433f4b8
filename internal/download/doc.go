// Package download turns track ids into playable files in the local cache.
//
// # Request flow
//
// [Manager.QueueDownload] answers from the [cache.Index] when it can. Otherwise the request joins the
// in-flight fetch for the same id (a [singleflight.Group] keyed by track id) or starts one. A fetch
// waits for a slot in a FIFO weighted semaphore sized to the worker count, then for the start-spacing
// gate (a [rate.Limiter] with burst 1), then runs the extractor. When the extractor leaves an
// intermediate container instead of the target format, an explicit transcode runs and the
// intermediate is removed. The output is validated and renamed into place.
//
// # Failures
//
// Errors carry a kind ([ErrUpstreamTimeout], [ErrUpstreamFailure], [ErrTranscodeFailure],
// [ErrValidationFailure]) inside a [DownloadError]. Age-restricted content is the exception:
// the track is removed from every playlist and the request resolves to no path without an error.
// Preload requests never return errors; failures are logged.
//
// # Maintenance
//
// [Manager.SweepTemp] deletes stale partial files, [Manager.EvictToSize] removes the oldest files
// until the cache fits a ceiling, and [Manager.CompressExisting] re-encodes the cache at a new quality.
package download
