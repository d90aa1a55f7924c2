package application

import (
	"context"
	"fmt"

	"todo-api/todo/domain"
)

type Service struct {
	Store domain.Store
}

func (s Service) Create(ctx context.Context, in domain.TodoInput) (domain.Todo, error) {
	if err := in.Validate(); err != nil {
		return domain.Todo{}, err
	}
	todo := in.NewTodo()
	err := s.Store.Session(ctx, func(tx domain.Session) error {
		return tx.Insert(ctx, &todo)
	})
	if err != nil {
		return domain.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

func (s Service) Get(ctx context.Context, id int64) (domain.Todo, error) {
	var todo domain.Todo
	err := s.Store.Session(ctx, func(tx domain.Session) error {
		var err error
		todo, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Todo{}, fmt.Errorf("get todo %d: %w", id, err)
	}
	return todo, nil
}

// Update replaces every field of todo id with in.
func (s Service) Update(ctx context.Context, id int64, in domain.TodoInput) (domain.Todo, error) {
	if err := in.Validate(); err != nil {
		return domain.Todo{}, err
	}
	var todo domain.Todo
	err := s.Store.Session(ctx, func(tx domain.Session) error {
		var err error
		if todo, err = tx.Get(ctx, id); err != nil {
			return err
		}
		in.Apply(&todo)
		return tx.Update(ctx, todo)
	})
	if err != nil {
		return domain.Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}
	return todo, nil
}

func (s Service) Delete(ctx context.Context, id int64) error {
	err := s.Store.Session(ctx, func(tx domain.Session) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	return nil
}

func (s Service) List(ctx context.Context) ([]domain.Todo, error) {
	var todos []domain.Todo
	err := s.Store.Session(ctx, func(tx domain.Session) error {
		var err error
		todos, err = tx.List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// Ping reports whether storage is reachable.
func (s Service) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}
