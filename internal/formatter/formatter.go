// package formatter renders import task reports in various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// Format names a report encoding.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts csv, md/markdown and txt/text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, s)
	}
}

// Render encodes task in format f.
func Render(task *models.ImportTask, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(task)
	case FormatMarkdown:
		return ExportToMarkdown(task)
	case FormatText:
		return ExportToText(task)
	default:
		return nil, fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, f)
	}
}

// ExportToCSV converts a task into CSV with one row per source track:
// Index, Name, Artist, Duration, Status, Match ID, Match Title, Channel, Match Duration
func ExportToCSV(task *models.ImportTask) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Index", "Name", "Artist", "Duration", "Status", "Match ID", "Match Title", "Channel", "Match Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, r := range task.Results {
		record := []string{
			strconv.Itoa(i + 1),
			r.Source.Name,
			r.Source.Artist,
			shared.FormatClock(r.Source.DurationMs),
			r.Status.String(),
			"", "", "", "",
		}
		if r.Match != nil {
			record[5] = r.Match.ID
			record[6] = r.Match.Title
			record[7] = r.Match.ChannelName
			record[8] = r.Match.DurationFormatted
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a task into a Markdown report with found and missing sections.
func ExportToMarkdown(task *models.ImportTask) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", task.PlaylistName)
	fmt.Fprintf(&buf, "**Status**: %s\n", task.Status)
	fmt.Fprintf(&buf, "**Progress**: %d/%d processed, %d found\n", task.ProcessedTracks, task.TotalTracks(), task.FoundTracks)
	fmt.Fprintf(&buf, "**Created**: %s\n\n", task.CreatedAt.Format("2006-01-02 15:04"))

	buf.WriteString("## Found\n\n")
	n := 0
	for _, r := range task.Results {
		if r.Match == nil {
			continue
		}
		n++
		fmt.Fprintf(&buf, "%d. %s - %s → [%s](https://music.youtube.com/watch?v=%s) [%s]\n",
			n, r.Source.Artist, r.Source.Name, r.Match.Title, r.Match.ID, r.Match.DurationFormatted)
	}
	if n == 0 {
		buf.WriteString("_none_\n")
	}

	buf.WriteString("\n## Not Found\n\n")
	n = 0
	for _, r := range task.Results {
		if r.Status != models.TrackNotFound {
			continue
		}
		n++
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", n, r.Source.Artist, r.Source.Name, shared.FormatClock(r.Source.DurationMs))
	}
	if n == 0 {
		buf.WriteString("_none_\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a task into a plain text listing.
func ExportToText(task *models.ImportTask) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Import: %s (%s)\n", task.PlaylistName, task.Status)
	fmt.Fprintf(&buf, "Tracks: %d/%d found\n\n", task.FoundTracks, task.TotalTracks())

	for i, r := range task.Results {
		line := fmt.Sprintf("%d. %s - %s", i+1, r.Source.Artist, r.Source.Name)
		switch {
		case r.Match != nil:
			line += fmt.Sprintf(" => %s (%s)", r.Match.Title, r.Match.ID)
		case r.Status == models.TrackNotFound:
			line += " => not found"
		default:
			line += " => " + r.Status.String()
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// WriteReport renders task and writes it to path.
//
// Defaults to {task.ID}_report.{format} as the filename.
func WriteReport(task *models.ImportTask, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_report.%s", task.ID, f)
	}

	data, err := Render(task, f)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}
