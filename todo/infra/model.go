package infra

import (
	"todo-api/todo/domain"

	"github.com/uptrace/bun"
)

// TodoModel maps the todos table.
type TodoModel struct {
	bun.BaseModel `bun:"table:todos"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Title         string `bun:"title,notnull"`
	Description   string `bun:"description,notnull"`
	Completed     bool   `bun:"completed,notnull"`
}

func todoFromModel(m TodoModel) domain.Todo {
	return domain.Todo{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Completed:   m.Completed,
	}
}

func modelFromTodo(t domain.Todo) TodoModel {
	return TodoModel{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
	}
}
