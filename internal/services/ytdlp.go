package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const watchURL = "https://www.youtube.com/watch?v="

// CommandRunner runs an external program and returns its stdout. ffmpeg and ffprobe go through it.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ToolError is returned when an external program exits unsuccessfully. Stderr holds its trimmed
// diagnostic output, which upstream classifiers inspect.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ToolError{Tool: filepath.Base(name), Stderr: strings.TrimSpace(stderr.String()), Err: ctxErr}
		}
		return nil, &ToolError{Tool: filepath.Base(name), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// DownloaderRunner executes a prepared yt-dlp command with trailing positional arguments.
type DownloaderRunner func(ctx context.Context, cmd *ytdlp.Command, args ...string) (*ytdlp.Result, error)

func ytdlpRunner(ctx context.Context, cmd *ytdlp.Command, args ...string) (*ytdlp.Result, error) {
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		var stderr string
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return res, &ToolError{Tool: "yt-dlp", Stderr: stderr, Err: err}
	}
	return res, nil
}

// YtDlp drives yt-dlp for extraction and search, ffmpeg for transcoding and ffprobe for probing.
type YtDlp struct {
	ytdlp   string
	ffmpeg  string
	ffprobe string
	dl      DownloaderRunner
	run     CommandRunner
}

var (
	_ download.Extractor = (*YtDlp)(nil)
	_ download.Prober    = (*YtDlp)(nil)
	_ SearchProvider     = (*YtDlp)(nil)
)

// NewYtDlp creates the tool wrapper from configured binary names or paths.
func NewYtDlp(tools shared.ToolsConfig) *YtDlp {
	y := &YtDlp{ytdlp: tools.YtDlp, ffmpeg: tools.FFmpeg, ffprobe: tools.FFprobe, dl: ytdlpRunner, run: execRunner}
	if y.ytdlp == "" {
		y.ytdlp = "yt-dlp"
	}
	if y.ffmpeg == "" {
		y.ffmpeg = "ffmpeg"
	}
	if y.ffprobe == "" {
		y.ffprobe = "ffprobe"
	}
	return y
}

// Name returns the provider name.
func (y *YtDlp) Name() string { return "yt-dlp" }

func (y *YtDlp) command() *ytdlp.Command {
	return ytdlp.New().
		SetExecutable(y.ytdlp).
		Quiet().
		NoWarnings().
		IgnoreConfig()
}

// Extract downloads the audio of req.TrackID and converts it to req.Format at req.Bitrate.
//
// Output goes to req.OutputStem with the extension yt-dlp picks; when conversion is unavailable
// the original container is left for the caller to transcode.
func (y *YtDlp) Extract(ctx context.Context, req download.ExtractRequest) error {
	cmd := y.command().
		NoPlaylist().
		NoProgress().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(req.Format).
		AudioQuality(req.Bitrate).
		Output(req.OutputStem + ".%(ext)s")
	if strings.ContainsRune(y.ffmpeg, filepath.Separator) {
		cmd.FFmpegLocation(y.ffmpeg)
	}

	_, err := y.dl(ctx, cmd, "--socket-timeout", "30", "--retries", "3", watchURL+req.TrackID)
	return err
}

// Transcode re-encodes input into output at bitrate, choosing the codec from output's extension.
func (y *YtDlp) Transcode(ctx context.Context, input, output, bitrate string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", positional(input),
		"-vn",
		"-codec:a", codecFor(filepath.Ext(output)),
		"-b:a", bitrate,
		positional(output),
	}
	_, err := y.run(ctx, y.ffmpeg, args...)
	return err
}

// ProbeDuration reports the container duration of path.
func (y *YtDlp) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := y.run(ctx, y.ffprobe, "-v", "error", "-show_entries", "format=duration", "-of", "csv=p=0", positional(path))
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

type ytDlpEntry struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Channel        string  `json:"channel"`
	Uploader       string  `json:"uploader"`
	Duration       float64 `json:"duration"`
	DurationString string  `json:"duration_string"`
}

// Search runs a "ytsearchN:" query and returns one candidate per result line.
func (y *YtDlp) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	cmd := y.command().
		FlatPlaylist().
		DumpJSON()
	res, err := y.dl(ctx, cmd, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e ytDlpEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
		}
		if e.ID == "" {
			continue
		}
		results = append(results, e.searchResult())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read yt-dlp output: %w", err)
	}
	return results, nil
}

func (e ytDlpEntry) searchResult() models.SearchResult {
	r := models.SearchResult{
		ID:                e.ID,
		Title:             e.Title,
		ChannelName:       e.Channel,
		DurationFormatted: e.DurationString,
		DurationMs:        int64(e.Duration * 1000),
	}
	if r.ChannelName == "" {
		r.ChannelName = e.Uploader
	}
	if r.DurationFormatted == "" && r.DurationMs > 0 {
		r.DurationFormatted = shared.FormatClock(r.DurationMs)
	}
	return r
}

// positional keeps a relative path that starts with '-' from being parsed as a flag.
func positional(path string) string {
	if strings.HasPrefix(path, "-") {
		return "." + string(filepath.Separator) + path
	}
	return path
}

func codecFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".m4a", ".aac", ".mp4":
		return "aac"
	case ".opus", ".ogg", ".webm":
		return "libopus"
	case ".flac":
		return "flac"
	default:
		return "libmp3lame"
	}
}
