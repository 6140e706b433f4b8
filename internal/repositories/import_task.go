package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// ImportTaskRepository stores import tasks in the import_tasks table.
//
// The summary columns (status, counters) are kept alongside the JSON payload so tasks can be
// inspected with plain SQL; the payload is authoritative when loading.
type ImportTaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewImportTaskRepository creates a new ImportTaskRepository with the given database connection
func NewImportTaskRepository(db *sql.DB) *ImportTaskRepository {
	return &ImportTaskRepository{db: db, now: time.Now}
}

// LoadTasks returns every stored task in creation order.
func (r *ImportTaskRepository) LoadTasks(ctx context.Context) ([]*models.ImportTask, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload FROM import_tasks ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query import tasks: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var tasks []*models.ImportTask
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("%w: failed to scan import task: %v", shared.ErrPersistence, err)
		}
		task, err := decodeTask(id, payload)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating import tasks: %v", shared.ErrPersistence, err)
	}
	return tasks, nil
}

// SaveTasks upserts tasks in a single transaction. Existing rows keep their sequence and new rows
// get the next one. Rows absent from tasks are left alone since another process may own them;
// use [ImportTaskRepository.DeleteTask] to drop a row.
func (r *ImportTaskRepository) SaveTasks(ctx context.Context, tasks []*models.ImportTask) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrPersistence, err)
	}
	defer tx.Rollback()

	existing, err := storedIDs(ctx, tx)
	if err != nil {
		return err
	}

	now := r.now()
	for _, task := range tasks {
		if task == nil || task.ID == "" {
			continue
		}

		payload, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("%w: failed to encode import task %s: %v", shared.ErrPersistence, task.ID, err)
		}

		if existing[task.ID] {
			_, err = tx.ExecContext(ctx, `
				UPDATE import_tasks
				SET playlist_name = ?, status = ?, processed_tracks = ?, total_tracks = ?, payload = ?, updated_at = ?
				WHERE id = ?
			`, task.PlaylistName, task.Status.String(), task.ProcessedTracks, task.TotalTracks(), string(payload), now, task.ID)
			if err != nil {
				return fmt.Errorf("%w: failed to update import task: %v", shared.ErrPersistence, err)
			}
			continue
		}

		sequence, err := nextSequenceTx(tx, "import_tasks")
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrPersistence, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO import_tasks (id, sequence, playlist_name, status, processed_tracks, total_tracks, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, sequence, task.PlaylistName, task.Status.String(), task.ProcessedTracks, task.TotalTracks(), string(payload), task.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("%w: failed to insert import task: %v", shared.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit import tasks: %v", shared.ErrPersistence, err)
	}
	return nil
}

// DeleteTask removes one task. Unknown ids are not an error.
func (r *ImportTaskRepository) DeleteTask(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM import_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: failed to delete import task: %v", shared.ErrPersistence, err)
	}
	return nil
}

// Get retrieves a single task by ID.
func (r *ImportTaskRepository) Get(ctx context.Context, id string) (*models.ImportTask, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM import_tasks WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import task not found: %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get import task: %v", shared.ErrPersistence, err)
	}
	return decodeTask(id, payload)
}

func storedIDs(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM import_tasks`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query import tasks: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan import task id: %v", shared.ErrPersistence, err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func decodeTask(id, payload string) (*models.ImportTask, error) {
	var task models.ImportTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("%w: failed to decode import task %s: %v", shared.ErrPersistence, id, err)
	}
	return &task, nil
}
