// Package store defines the task record model and the persistence interface
// used by the conversation engine and the REST API.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Step is one entry of an AI-generated task breakdown.
type Step struct {
	Index int    `json:"step"`
	Text  string `json:"description"`
}

// Task is a single to-do record. The id is store-assigned and immutable;
// the owner is set at creation and never changed afterwards.
type Task struct {
	ID                  string    `json:"id"`
	Owner               string    `json:"owner"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	EnhancedDescription string    `json:"enhanced_description,omitempty"`
	Steps               []Step    `json:"steps,omitempty"`
	Completed           bool      `json:"completed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Update holds the partial fields accepted by Store.Update.
// Nil pointers mean "leave unchanged".
type Update struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Store is the task persistence interface. Implementations assign the id and
// the timestamps; Create always starts tasks with Completed=false.
type Store interface {
	// Create inserts a new task for the owner and returns the stored record.
	Create(ctx context.Context, task Task) (Task, error)

	// ListByOwner returns all of an owner's tasks, newest first.
	ListByOwner(ctx context.Context, owner string) ([]Task, error)

	// ListIncomplete returns the owner's open tasks, newest first.
	ListIncomplete(ctx context.Context, owner string) ([]Task, error)

	// Get returns a single task by id, or ErrNotFound.
	Get(ctx context.Context, id string) (Task, error)

	// Update applies partial fields to a task and returns the updated record.
	Update(ctx context.Context, id string, upd Update) (Task, error)

	// Delete removes a task by id. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying resources.
	Close() error
}
