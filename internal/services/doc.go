// Package services implements the external collaborators of the pipeline.
//
//   - [YouTubeService] : search provider backed by the YouTube Music proxy (GET /api/search)
//   - [YtDlp] : audio extraction and transcode tool (yt-dlp, ffmpeg, ffprobe), also usable as a
//     search provider through "ytsearchN:" queries
//   - [SpotifyService] : import source that lists the tracks of a Spotify playlist
//
// HTTP services decode JSON with [encoding/json] and wrap failures in [shared.ErrAPIRequest].
// Process based tools capture stderr and include it in returned errors so callers can classify
// upstream failures by message.
package services
