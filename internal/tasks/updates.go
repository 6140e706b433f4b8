package tasks

import (
	"fmt"

	"github.com/desertthunder/ytplay/internal/models"
)

// Event is a change notification for a single import task.
//
// Task is a snapshot taken when the event was published and may be retained by the receiver.
type Event struct {
	Kind    EventKind
	TaskID  string
	Task    *models.ImportTask
	Message string
}

// EventKind enumerates task changes.
type EventKind int

const (
	TaskCreated EventKind = iota
	TaskSearching
	TaskProgress
	TaskPaused
	TaskResumed
	TaskCompleted
	TaskCancelled
	TaskRemoved
)

func (k EventKind) String() string {
	switch k {
	case TaskCreated:
		return "task_created"
	case TaskSearching:
		return "task_searching"
	case TaskProgress:
		return "task_progress"
	case TaskPaused:
		return "task_paused"
	case TaskResumed:
		return "task_resumed"
	case TaskCompleted:
		return "task_completed"
	case TaskCancelled:
		return "task_cancelled"
	case TaskRemoved:
		return "task_removed"
	default:
		return ""
	}
}

func createdEvent(t *models.ImportTask) Event {
	return Event{
		Kind:    TaskCreated,
		TaskID:  t.ID,
		Task:    t,
		Message: fmt.Sprintf("Import %q created (%d tracks)", t.PlaylistName, t.TotalTracks()),
	}
}

func searchingEvent(t *models.ImportTask, src models.SourceTrack) Event {
	return Event{
		Kind:    TaskSearching,
		TaskID:  t.ID,
		Task:    t,
		Message: fmt.Sprintf("[%d/%d] %s - %s", t.ProcessedTracks+1, t.TotalTracks(), src.Artist, src.Name),
	}
}

func progressEvent(t *models.ImportTask, r models.TrackResult) Event {
	mark := "✗"
	if r.Status == models.TrackFound {
		mark = "✓"
	}
	return Event{
		Kind:    TaskProgress,
		TaskID:  t.ID,
		Task:    t,
		Message: fmt.Sprintf("[%d/%d] %s %s - %s", t.ProcessedTracks, t.TotalTracks(), mark, r.Source.Artist, r.Source.Name),
	}
}

func statusEvent(kind EventKind, t *models.ImportTask) Event {
	return Event{
		Kind:    kind,
		TaskID:  t.ID,
		Task:    t,
		Message: fmt.Sprintf("Import %q %s", t.PlaylistName, t.Status),
	}
}

func completedEvent(t *models.ImportTask) Event {
	return Event{
		Kind:    TaskCompleted,
		TaskID:  t.ID,
		Task:    t,
		Message: completionBody(t),
	}
}

func removedEvent(id string) Event {
	return Event{Kind: TaskRemoved, TaskID: id, Message: fmt.Sprintf("Import %s removed", id)}
}

func completionBody(t *models.ImportTask) string {
	return fmt.Sprintf("%s: %d/%d tracks found", t.PlaylistName, t.FoundTracks, t.TotalTracks())
}
