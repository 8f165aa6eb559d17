package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "tasks.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("assigns id and timestamps", func(t *testing.T) {
		task, err := s.Create(ctx, Task{
			Owner:       "jane@x.com",
			Title:       "Buy milk",
			Description: "2 liters",
			Steps:       []Step{{Index: 1, Text: "Go to the store"}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if task.ID == "" {
			t.Error("expected store-assigned id")
		}
		if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
			t.Error("expected store-assigned timestamps")
		}
		if task.Completed {
			t.Error("new tasks must start incomplete")
		}

		got, err := s.Get(ctx, task.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "Buy milk" || got.Owner != "jane@x.com" {
			t.Errorf("unexpected record: %+v", got)
		}
		if len(got.Steps) != 1 || got.Steps[0].Text != "Go to the store" {
			t.Errorf("steps not round-tripped: %+v", got.Steps)
		}
	})

	t.Run("rejects empty title", func(t *testing.T) {
		if _, err := s.Create(ctx, Task{Owner: "jane@x.com"}); err == nil {
			t.Error("expected error for empty title")
		}
	})

	t.Run("get unknown id", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := s.Create(ctx, Task{Owner: "jane", Title: title}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	if _, err := s.Create(ctx, Task{Owner: "other", Title: "not mine"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := s.ListByOwner(ctx, "jane")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "third" || tasks[2].Title != "first" {
		t.Errorf("expected newest-first ordering, got %q..%q", tasks[0].Title, tasks[2].Title)
	}
}

func TestListIncompleteFiltersCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	open, err := s.Create(ctx, Task{Owner: "jane", Title: "open"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := s.Create(ctx, Task{Owner: "jane", Title: "done"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	completed := true
	if _, err := s.Update(ctx, done.ID, Update{Completed: &completed}); err != nil {
		t.Fatalf("update: %v", err)
	}

	tasks, err := s.ListIncomplete(ctx, "jane")
	if err != nil {
		t.Fatalf("list incomplete: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != open.ID {
		t.Errorf("expected only the open task, got %+v", tasks)
	}
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, Task{Owner: "jane", Title: "draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("partial title", func(t *testing.T) {
		title := "final"
		got, err := s.Update(ctx, task.ID, Update{Title: &title})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Title != "final" || got.Completed {
			t.Errorf("unexpected record after update: %+v", got)
		}
	})

	t.Run("rejects empty title", func(t *testing.T) {
		empty := ""
		if _, err := s.Update(ctx, task.ID, Update{Title: &empty}); err == nil {
			t.Error("expected error for empty title")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		done := true
		if _, err := s.Update(ctx, "nope", Update{Completed: &done}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, Task{Owner: "jane", Title: "temp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}
