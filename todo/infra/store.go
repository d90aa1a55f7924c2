package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"todo-api/todo/domain"

	"github.com/uptrace/bun"
)

// Store implements domain.Store. Every Session runs inside one database
// transaction.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Session(ctx context.Context, fn func(domain.Session) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(session{tx: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type session struct {
	tx bun.Tx
}

func (s session) Insert(ctx context.Context, t *domain.Todo) error {
	m := modelFromTodo(*t)
	m.ID = 0
	if _, err := s.tx.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	t.ID = m.ID
	return nil
}

func (s session) Get(ctx context.Context, id int64) (domain.Todo, error) {
	var m TodoModel
	err := s.tx.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Todo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Todo{}, fmt.Errorf("select todo %d: %w", id, err)
	}
	return todoFromModel(m), nil
}

// Update does not look at the affected row count: MySQL reports zero rows
// when the new values equal the old ones. Callers load the row first.
func (s session) Update(ctx context.Context, t domain.Todo) error {
	m := modelFromTodo(t)
	if _, err := s.tx.NewUpdate().Model(&m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("update todo %d: %w", t.ID, err)
	}
	return nil
}

func (s session) Delete(ctx context.Context, id int64) error {
	res, err := s.tx.NewDelete().Model((*TodoModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s session) List(ctx context.Context) ([]domain.Todo, error) {
	var ms []TodoModel
	if err := s.tx.NewSelect().Model(&ms).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	out := make([]domain.Todo, 0, len(ms))
	for _, m := range ms {
		out = append(out, todoFromModel(m))
	}
	return out, nil
}
