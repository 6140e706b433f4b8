package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SearchResult is a single candidate returned by a search provider, in relevance order.
type SearchResult struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	ChannelName       string `json:"channelName"`
	DurationFormatted string `json:"durationFormatted"`
	DurationMs        int64  `json:"durationMs"`
}

// SourceTrack is an external track reference to be resolved against a search provider.
type SourceTrack struct {
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	DurationMs int64  `json:"durationMs"`
}

// AudioQuality selects the target bitrate for downloads and re-encodes.
type AudioQuality string

const (
	QualityLow    AudioQuality = "low"
	QualityMedium AudioQuality = "medium"
	QualityHigh   AudioQuality = "high"
)

// ParseAudioQuality validates s as one of low, medium or high.
func ParseAudioQuality(s string) (AudioQuality, error) {
	switch q := AudioQuality(s); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	default:
		return "", fmt.Errorf("unknown audio quality %q", s)
	}
}

// Bitrate returns the encoder bitrate argument for q, falling back to medium.
func (q AudioQuality) Bitrate() string {
	switch q {
	case QualityLow:
		return "128k"
	case QualityHigh:
		return "320k"
	default:
		return "192k"
	}
}

// TrackStatus is the resolution state of a single track inside an import.
type TrackStatus int

const (
	TrackPending TrackStatus = iota
	TrackSearching
	TrackFound
	TrackNotFound
)

func (s TrackStatus) String() string {
	switch s {
	case TrackPending:
		return "pending"
	case TrackSearching:
		return "searching"
	case TrackFound:
		return "found"
	case TrackNotFound:
		return "not_found"
	default:
		return ""
	}
}

func (s TrackStatus) MarshalJSON() ([]byte, error) {
	v := s.String()
	if v == "" {
		return nil, fmt.Errorf("invalid track status %d", int(s))
	}
	return json.Marshal(v)
}

func (s *TrackStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	for _, c := range []TrackStatus{TrackPending, TrackSearching, TrackFound, TrackNotFound} {
		if c.String() == v {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("invalid track status %q", v)
}

// TaskStatus is the lifecycle state of an [ImportTask].
//
// Transitions are one-directional except running and paused, which may alternate.
type TaskStatus int

const (
	TaskRunning TaskStatus = iota
	TaskPaused
	TaskCompleted
	TaskCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskPaused:
		return "paused"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// Active reports whether the task still belongs to the active set.
func (s TaskStatus) Active() bool {
	return s == TaskRunning || s == TaskPaused
}

// CanTransition reports whether moving from s to next is allowed.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskRunning:
		return next == TaskPaused || next == TaskCompleted || next == TaskCancelled
	case TaskPaused:
		return next == TaskRunning || next == TaskCancelled
	default:
		return false
	}
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	v := s.String()
	if v == "" {
		return nil, fmt.Errorf("invalid task status %d", int(s))
	}
	return json.Marshal(v)
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	st, err := ParseTaskStatus(v)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseTaskStatus converts the persisted name of a status back into a [TaskStatus].
func ParseTaskStatus(v string) (TaskStatus, error) {
	for _, c := range []TaskStatus{TaskRunning, TaskPaused, TaskCompleted, TaskCancelled} {
		if c.String() == v {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid task status %q", v)
}

// TrackResult records how a [SourceTrack] was resolved.
type TrackResult struct {
	Source  SourceTrack    `json:"source"`
	Status  TrackStatus    `json:"status"`
	Match   *SearchResult  `json:"match,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
}

// ImportTask is a resumable bulk import of external tracks into a named playlist.
type ImportTask struct {
	ID              string        `json:"id"`
	PlaylistName    string        `json:"playlistName"`
	Download        bool          `json:"download"`
	Results         []TrackResult `json:"results"`
	ProcessedTracks int           `json:"processedTracks"`
	FoundTracks     int           `json:"foundTracks"`
	Status          TaskStatus    `json:"status"`
	Interrupted     bool          `json:"interrupted,omitempty"` // paused by a restart, not by the user
	CreatedAt       time.Time     `json:"createdAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
}

// NewImportTask builds a running task with one pending result per source track.
func NewImportTask(id, name string, tracks []SourceTrack, createdAt time.Time) *ImportTask {
	results := make([]TrackResult, len(tracks))
	for i, t := range tracks {
		results[i] = TrackResult{Source: t, Status: TrackPending}
	}
	return &ImportTask{
		ID:           id,
		PlaylistName: name,
		Results:      results,
		Status:       TaskRunning,
		CreatedAt:    createdAt,
	}
}

// TotalTracks returns the number of source tracks in the task.
func (t *ImportTask) TotalTracks() int {
	return len(t.Results)
}

// Done reports whether every track has been processed.
func (t *ImportTask) Done() bool {
	return t.ProcessedTracks >= len(t.Results)
}

// Found returns the matched candidates in input order.
func (t *ImportTask) Found() []SearchResult {
	found := make([]SearchResult, 0, t.FoundTracks)
	for _, r := range t.Results {
		if r.Status == TrackFound && r.Match != nil {
			found = append(found, *r.Match)
		}
	}
	return found
}

// Clone returns a deep copy safe to hand to observers.
func (t *ImportTask) Clone() *ImportTask {
	c := *t
	c.Results = make([]TrackResult, len(t.Results))
	for i, r := range t.Results {
		if r.Match != nil {
			m := *r.Match
			r.Match = &m
		}
		if r.Results != nil {
			r.Results = append([]SearchResult(nil), r.Results...)
		}
		c.Results[i] = r
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// CachedTrack is the recorded metadata of a file in the download cache.
type CachedTrack struct {
	TrackID   string    `json:"trackId"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	Bitrate   string    `json:"bitrate"`
	FetchedAt time.Time `json:"fetchedAt"`
}
