package formatter

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	th "github.com/desertthunder/ytplay/internal/testing"
)

func testTask() *models.ImportTask {
	task := models.NewImportTask("task-1", "Road Trip", []models.SourceTrack{
		{Name: "One", Artist: "Alpha", DurationMs: 200000},
		{Name: "Two", Artist: "Beta", DurationMs: 180000},
		{Name: "Three", Artist: "Gamma", DurationMs: 61000},
	}, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	task.Results[0].Status = models.TrackFound
	task.Results[0].Match = &models.SearchResult{ID: "vid1", Title: "One (Official)", ChannelName: "Alpha", DurationFormatted: "3:21"}
	task.Results[1].Status = models.TrackNotFound
	task.ProcessedTracks = 2
	task.FoundTracks = 1
	task.Status = models.TaskPaused
	return task
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testTask())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
		}
		if lines[0] != "Index,Name,Artist,Duration,Status,Match ID,Match Title,Channel,Match Duration" {
			t.Errorf("CSV missing headers, got: %s", lines[0])
		}
		if lines[1] != "1,One,Alpha,3:20,found,vid1,One (Official),Alpha,3:21" {
			t.Errorf("unexpected found row: %s", lines[1])
		}
		if lines[2] != "2,Two,Beta,3:00,not_found,,,," {
			t.Errorf("unexpected not found row: %s", lines[2])
		}
		if !strings.HasPrefix(lines[3], "3,Three,Gamma,1:01,pending") {
			t.Errorf("unexpected pending row: %s", lines[3])
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testTask())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Road Trip",
			"**Status**: paused",
			"**Progress**: 2/3 processed, 1 found",
			"1. Alpha - One → [One (Official)](https://music.youtube.com/watch?v=vid1) [3:21]",
			"## Not Found\n\n1. Beta - Two [3:00]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown with no matches", func(t *testing.T) {
		task := models.NewImportTask("t", "Empty", []models.SourceTrack{{Name: "A", Artist: "B"}}, time.Now())
		data, _ := ExportToMarkdown(task)
		if strings.Count(string(data), "_none_") != 2 {
			t.Errorf("expected both sections to be empty, got:\n%s", data)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testTask())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)
		for _, want := range []string{
			"Import: Road Trip (paused)",
			"Tracks: 1/3 found",
			"1. Alpha - One => One (Official) (vid1)",
			"2. Beta - Two => not found",
			"3. Gamma - Three => pending",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got:\n%s", want, output)
			}
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"csv", FormatCSV, false},
		{"Markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"", FormatText, false},
		{"text", FormatText, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestWriteReport(t *testing.T) {
	t.Run("WithDefaultPath", func(t *testing.T) {
		dir := t.TempDir()
		original := th.MustGetwd(t)
		th.MustChdir(t, dir)
		defer th.MustChdir(t, original)

		path, err := WriteReport(testTask(), FormatCSV, "")
		if err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}
		if path != "task-1_report.csv" {
			t.Errorf("unexpected default path %q", path)
		}
		th.AssertFileExists(t, filepath.Join(dir, path))
	})

	t.Run("WithCustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "trip.md")
		got, err := WriteReport(testTask(), FormatMarkdown, path)
		if err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "# Road Trip") {
			t.Errorf("unexpected content %q", content)
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		if _, err := WriteReport(testTask(), Format("pdf"), filepath.Join(t.TempDir(), "x")); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
