package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// Store persists import tasks.
//
// SaveTasks upserts by id and never drops tasks missing from the list, because several processes
// may share one store. Removal is always explicit through DeleteTask.
type Store interface {
	LoadTasks(ctx context.Context) ([]*models.ImportTask, error)
	SaveTasks(ctx context.Context, tasks []*models.ImportTask) error
	DeleteTask(ctx context.Context, id string) error
}

// FileStore keeps the task list as a single JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// LoadTasks reads the task list. A missing file is an empty list.
func (s *FileStore) LoadTasks(_ context.Context) ([]*models.ImportTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// SaveTasks merges tasks into the file by id and rewrites it atomically. Stored tasks absent from
// tasks keep their place; new ones are appended.
func (s *FileStore) SaveTasks(_ context.Context, tasks []*models.ImportTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.readLocked()
	if err != nil {
		return err
	}

	index := make(map[string]int, len(stored))
	for i, t := range stored {
		if t != nil {
			index[t.ID] = i
		}
	}
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if i, ok := index[t.ID]; ok {
			stored[i] = t
			continue
		}
		index[t.ID] = len(stored)
		stored = append(stored, t)
	}
	return s.writeLocked(stored)
}

// DeleteTask removes one task from the file. Unknown ids are ignored.
func (s *FileStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(stored, func(t *models.ImportTask) bool { return t == nil || t.ID == id })
	return s.writeLocked(kept)
}

func (s *FileStore) readLocked() ([]*models.ImportTask, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tasks: %v", shared.ErrPersistence, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var tasks []*models.ImportTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: failed to parse tasks: %v", shared.ErrPersistence, err)
	}
	return tasks, nil
}

func (s *FileStore) writeLocked(tasks []*models.ImportTask) error {
	if tasks == nil {
		tasks = []*models.ImportTask{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode tasks: %v", shared.ErrPersistence, err)
	}
	if err := shared.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	return nil
}
