package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxQueryLength caps the number of runes in a generated search query.
const MaxQueryLength = 100

var (
	featParenPattern = regexp.MustCompile(`(?i)\s*[(\[]\s*(?:feat\.?|ft\.?|featuring|with)\s[^)\]]*[)\]]`)
	featTailPattern  = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s.*$`)
	artistSeparator  = regexp.MustCompile(`(?i)\s*(?:,|;|&|\s+x\s+|\s+feat\.?\s+|\s+ft\.?\s+|\s+featuring\s+)\s*`)
)

// NormalizeQuery trims and lower-cases a free text query for use as a cache key.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// NormalizeTrackKey builds a case and whitespace insensitive key from a title and artist.
func NormalizeTrackKey(title, artist string) string {
	return NormalizeQuery(title) + "|" + NormalizeQuery(artist)
}

// PrimaryArtist returns the first credited artist of a combined artist string.
func PrimaryArtist(artist string) string {
	parts := artistSeparator.Split(strings.TrimSpace(artist), 2)
	return strings.TrimSpace(parts[0])
}

// BuildSearchQuery combines a track name and its primary artist into a search query.
//
// Featured artist credits and punctuation are removed and the result is capped at [MaxQueryLength] runes.
func BuildSearchQuery(name, artist string) string {
	name = featParenPattern.ReplaceAllString(name, "")
	name = featTailPattern.ReplaceAllString(name, "")

	q := stripPunctuation(name + " " + PrimaryArtist(artist))
	if r := []rune(q); len(r) > MaxQueryLength {
		q = strings.TrimSpace(string(r[:MaxQueryLength]))
	}
	return q
}

func stripPunctuation(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// maxClockLead bounds the leading field of a clock string so the millisecond total cannot
// overflow.
const maxClockLead = 9999

// ParseClock converts "MM:SS" or "HH:MM:SS" into milliseconds. Fields are plain ASCII digits;
// signs are rejected and trailing fields must be below 60.
func ParseClock(s string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total int64
	for i, p := range parts {
		if p == "" || !isDigits(p) {
			return 0, false
		}
		if i > 0 && len(p) > 2 {
			return 0, false
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, false
		}
		if i == 0 && n > maxClockLead {
			return 0, false
		}
		if i > 0 && n >= 60 {
			return 0, false
		}
		total = total*60 + n
	}
	return total * 1000, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateTrackID checks that id can be used as a single file name inside the cache and playlist
// directories. Ids may start with '-' since the video site issues such ids; callers passing paths
// built from them to other programs must not let them be read as flags.
func ValidateTrackID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty track id", ErrInvalidInput)
	case id == "." || strings.Contains(id, ".."):
		return fmt.Errorf("%w: track id %q contains a relative path", ErrInvalidInput, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: track id %q contains a path separator", ErrInvalidInput, id)
	}
	return nil
}

// FormatClock renders milliseconds as "M:SS" or "H:MM:SS".
func FormatClock(ms int64) string {
	secs := ms / 1000
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
