package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("todo not found")
	ErrInvalidInput = errors.New("invalid todo")
)

// Todo is the stored entity. ID is assigned by storage and never changes.
type Todo struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// TodoInput is the create/update payload. Update overwrites every field, so
// fields missing from the JSON are reset to their zero value.
type TodoInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func (in TodoInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}

// Apply overwrites t with every field of in.
func (in TodoInput) Apply(t *Todo) {
	t.Title = in.Title
	t.Description = in.Description
	t.Completed = in.Completed
}

// NewTodo builds an unsaved Todo from in.
func (in TodoInput) NewTodo() Todo {
	var t Todo
	in.Apply(&t)
	return t
}
