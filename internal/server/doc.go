// Package server exposes the pipeline to a local UI over HTTP.
//
// # API
//
// [API] mounts the caller-facing operations on a chi router: playable paths and cache checks for
// tracks, the audio quality setting, re-compression of the cache, and the import task lifecycle.
// Long-running work (re-compression, imports) returns immediately; progress is pushed on the
// event stream.
//
// # Event Stream
//
// GET /api/events is a server-sent event stream fed by a [Hub]. Import task changes and
// compression progress are published as named events with JSON payloads. Slow clients miss events
// instead of stalling publishers.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback used by the Spotify login
// command. It validates the state parameter (CSRF protection), exchanges the code for a token and
// sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
