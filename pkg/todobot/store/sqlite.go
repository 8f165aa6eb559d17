package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	JournalMode string `yaml:"journal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	cfg SQLiteConfig
}

// OpenSQLite opens or creates the task database and applies the schema.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/todobot.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the schema. Idempotent via IF NOT EXISTS.
func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
    id                   TEXT PRIMARY KEY,
    owner                TEXT NOT NULL,
    title                TEXT NOT NULL,
    description          TEXT DEFAULT '',
    enhanced_description TEXT DEFAULT '',
    steps                TEXT DEFAULT '[]',
    completed            INTEGER NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_open ON tasks(owner, completed);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Create inserts a new task. The id and timestamps are assigned here;
// Completed always starts false regardless of the input record.
func (s *SQLiteStore) Create(ctx context.Context, task Task) (Task, error) {
	if task.Title == "" {
		return Task{}, fmt.Errorf("create task: title is required")
	}

	task.ID = uuid.NewString()
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Completed = false

	steps, err := json.Marshal(task.Steps)
	if err != nil {
		return Task{}, fmt.Errorf("encode steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner, title, description, enhanced_description, steps, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		task.ID, task.Owner, task.Title, task.Description, task.EnhancedDescription,
		string(steps), task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// ListByOwner returns every task for the owner, newest first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, owner string) ([]Task, error) {
	return s.list(ctx, `
		SELECT id, owner, title, description, enhanced_description, steps, completed, created_at, updated_at
		FROM tasks WHERE owner = ? ORDER BY created_at DESC`, owner)
}

// ListIncomplete returns the owner's open tasks, newest first.
func (s *SQLiteStore) ListIncomplete(ctx context.Context, owner string) ([]Task, error) {
	return s.list(ctx, `
		SELECT id, owner, title, description, enhanced_description, steps, completed, created_at, updated_at
		FROM tasks WHERE owner = ? AND completed = 0 ORDER BY created_at DESC`, owner)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Get returns a task by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, title, description, enhanced_description, steps, completed, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	return task, err
}

// Update applies the partial fields and returns the updated record.
func (s *SQLiteStore) Update(ctx context.Context, id string, upd Update) (Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}

	if upd.Title != nil {
		if *upd.Title == "" {
			return Task{}, fmt.Errorf("update task: title cannot be empty")
		}
		task.Title = *upd.Title
	}
	if upd.Completed != nil {
		task.Completed = *upd.Completed
	}
	task.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, completed = ?, updated_at = ? WHERE id = ?`,
		task.Title, boolToInt(task.Completed), task.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Delete removes a task by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (Task, error) {
	var (
		task      Task
		steps     string
		completed int
		created   string
		updated   string
	)
	err := sc.Scan(&task.ID, &task.Owner, &task.Title, &task.Description,
		&task.EnhancedDescription, &steps, &completed, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("scan task: %w", err)
	}

	if steps != "" && steps != "[]" {
		if err := json.Unmarshal([]byte(steps), &task.Steps); err != nil {
			return Task{}, fmt.Errorf("decode steps for task %s: %w", task.ID, err)
		}
	}
	task.Completed = completed != 0
	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Task{}, fmt.Errorf("parse created_at for task %s: %w", task.ID, err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Task{}, fmt.Errorf("parse updated_at for task %s: %w", task.ID, err)
	}
	return task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
