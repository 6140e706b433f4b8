package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{name: "basic normalization", title: "Song Title", artist: "Artist Name", want: "song title|artist name"},
		{name: "extra whitespace", title: "  Song   Title  ", artist: "  Artist   Name  ", want: "song title|artist name"},
		{name: "mixed case", title: "SoNg TiTlE", artist: "ArTiSt NaMe", want: "song title|artist name"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tc := []struct {
		name   string
		track  string
		artist string
		want   string
	}{
		{name: "plain", track: "Song", artist: "Artist", want: "Song Artist"},
		{name: "featured in parens", track: "Song (feat. Other)", artist: "Artist", want: "Song Artist"},
		{name: "featured in brackets", track: "Song [ft. Other]", artist: "Artist", want: "Song Artist"},
		{name: "featured tail", track: "Song feat. Other", artist: "Artist", want: "Song Artist"},
		{name: "primary artist from list", track: "Song", artist: "Artist A, Artist B", want: "Song Artist A"},
		{name: "primary artist with ampersand", track: "Song", artist: "Duo & Friend", want: "Song Duo"},
		{name: "punctuation stripped", track: "Don't Stop - Remastered!", artist: "Band", want: "Dont Stop Remastered Band"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSearchQuery(tt.track, tt.artist); got != tt.want {
				t.Errorf("BuildSearchQuery(%q, %q) = %q, want %q", tt.track, tt.artist, got, tt.want)
			}
		})
	}

	t.Run("caps length", func(t *testing.T) {
		got := BuildSearchQuery(strings.Repeat("a", 150), "Artist")
		if n := len([]rune(got)); n > MaxQueryLength {
			t.Errorf("expected at most %d runes, got %d", MaxQueryLength, n)
		}
	})
}

func TestParseClock(t *testing.T) {
	tc := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"3:45", 225000, true},
		{"03:05", 185000, true},
		{"1:02:03", 3723000, true},
		{"75:00", 4500000, true},
		{"", 0, false},
		{"345", 0, false},
		{"3:75", 0, false},
		{"a:10", 0, false},
		{"1:2:3:4", 0, false},
		{"-1:10", 0, false},
		{"+3:00", 0, false},
		{"-0:30", 0, false},
		{"3:+5", 0, false},
		{"3:005", 0, false},
		{"9999:59", 599_999_000, true},
		{"10000:00", 0, false},
		{"99999999999999999:00", 0, false},
		{"9223372036854775807:00:00", 0, false},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseClock(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestValidateTrackID(t *testing.T) {
	tc := []struct {
		id string
		ok bool
	}{
		{"dQw4w9WgXcQ", true},
		{"-5WzVQm_x0E", true},
		{"a.b", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../x", false},
		{"a/b", false},
		{`a\b`, false},
		{"a..b", false},
		{"a\x00b", false},
	}

	for _, tt := range tc {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateTrackID(tt.id)
			if tt.ok && err != nil {
				t.Errorf("ValidateTrackID(%q) = %v, want nil", tt.id, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateTrackID(%q) = %v, want ErrInvalidInput", tt.id, err)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(225000); got != "3:45" {
		t.Errorf("expected 3:45, got %s", got)
	}
	if got := FormatClock(3723000); got != "1:02:03" {
		t.Errorf("expected 1:02:03, got %s", got)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	if err := SetLogLevel(logger, "warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be written")
	}

	if err := SetLogLevel(logger, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}

	WithLogger(nil, "component", "test").Info("discarded")
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == "" || a == b {
		t.Errorf("expected distinct ids, got %q and %q", a, b)
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()
	if a == b || len(a) != 43 {
		t.Errorf("expected distinct 43 character states, got %q and %q", a, b)
	}
}

func TestOpenBrowserUnsupported(t *testing.T) {
	original := getRuntime
	defer func() { getRuntime = original }()
	getRuntime = func() string { return "plan9" }

	if err := OpenBrowser("http://localhost"); err == nil || !strings.Contains(err.Error(), "unsupported platform") {
		t.Errorf("expected unsupported platform error, got %v", err)
	}
}
