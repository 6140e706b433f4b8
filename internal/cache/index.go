package cache

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/ytplay/internal/shared"
)

const partialMarker = ".part"

// intermediateExts are container formats the extractor may leave behind before conversion.
var intermediateExts = []string{".webm", ".m4a", ".opus", ".ogg", ".ytdl", ".tmp"}

// Entry is a file found in the cache directory.
type Entry struct {
	TrackID string
	Path    string
	Size    int64
	ModTime time.Time
}

// Index resolves track ids to files in a single cache directory.
type Index struct {
	dir string
	ext string
}

// NewIndex creates an index over dir for files with the given format extension (e.g. "mp3").
func NewIndex(dir, format string) *Index {
	return &Index{dir: dir, ext: "." + strings.TrimPrefix(format, ".")}
}

// Dir returns the cache directory.
func (i *Index) Dir() string { return i.dir }

// Ext returns the expected extension including the leading dot.
func (i *Index) Ext() string { return i.ext }

// Path returns the canonical cache path for trackID. Callers validate trackID with
// [shared.ValidateTrackID] first.
func (i *Index) Path(trackID string) string {
	return filepath.Join(i.dir, trackID+i.ext)
}

// PartialStem returns the path, without extension, that in-progress writes for trackID use.
func (i *Index) PartialStem(trackID string) string {
	return filepath.Join(i.dir, trackID+partialMarker)
}

// PartialPath returns the in-progress output path for trackID.
func (i *Index) PartialPath(trackID string) string {
	return i.PartialStem(trackID) + i.ext
}

// Lookup returns the cached file for trackID if it exists and is non-empty.
//
// The canonical path is checked first, then the directory is scanned for any other
// "<id>.*<ext>" name that is not a partial write.
func (i *Index) Lookup(trackID string) (string, bool) {
	if shared.ValidateTrackID(trackID) != nil {
		return "", false
	}

	path := i.Path(trackID)
	if validFile(path) {
		return path, true
	}

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return "", false
	}
	prefix := trackID + "."
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !i.isFinal(name) {
			continue
		}
		if p := filepath.Join(i.dir, name); validFile(p) {
			return p, true
		}
	}
	return "", false
}

// Entries lists every valid cached file. Unreadable directories yield an empty list.
func (i *Index) Entries() ([]Entry, error) {
	return i.scan(func(name string) bool { return i.isFinal(name) })
}

// TempFiles lists partial writes and intermediate containers.
func (i *Index) TempFiles() ([]Entry, error) {
	return i.scan(func(name string) bool { return !i.isFinal(name) && isTemp(name) })
}

func (i *Index) scan(keep func(string) bool) ([]Entry, error) {
	dirEntries, err := os.ReadDir(i.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, e := range dirEntries {
		if e.IsDir() || !keep(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			TrackID: trackIDOf(e.Name()),
			Path:    filepath.Join(i.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (i *Index) isFinal(name string) bool {
	return strings.HasSuffix(name, i.ext) && !strings.Contains(name, partialMarker)
}

func isTemp(name string) bool {
	if strings.Contains(name, partialMarker) {
		return true
	}
	ext := filepath.Ext(name)
	for _, t := range intermediateExts {
		if ext == t {
			return true
		}
	}
	return false
}

func trackIDOf(name string) string {
	id, _, _ := strings.Cut(name, ".")
	return id
}

func validFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
