package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"todo-api/todo/application"
	"todo-api/todo/domain"
	"todo-api/todo/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) application.Service {
	t.Helper()
	db, err := infra.Open(context.Background(), infra.Options{
		Type:   "sqlite",
		DSN:    ":memory:",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	store := infra.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return application.Service{Store: store}
}

func TestService_Lifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.TodoInput{Title: "Buy milk", Description: "2 liters"})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.False(t, created.Completed)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	updated, err := svc.Update(ctx, created.ID, domain.TodoInput{Title: "Buy milk", Description: "2 liters", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.Completed)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_UpdateReplacesEveryField(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.TodoInput{Title: "a", Description: "keep me?", Completed: true})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, domain.TodoInput{Title: "b"})
	require.NoError(t, err)
	assert.Equal(t, domain.Todo{ID: created.ID, Title: "b"}, updated)
}

func TestService_NotFound(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, 999, domain.TodoInput{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Delete(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_RejectsBlankTitle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.TodoInput{Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	created, err := svc.Create(ctx, domain.TodoInput{Title: "ok"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, domain.TodoInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	todos, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestService_List(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	todos, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, todos)

	for _, title := range []string{"one", "two"} {
		_, err := svc.Create(ctx, domain.TodoInput{Title: title})
		require.NoError(t, err)
	}
	todos, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "one", todos[0].Title)
	assert.Equal(t, "two", todos[1].Title)
}

type failingStore struct{ err error }

func (f failingStore) Session(context.Context, func(domain.Session) error) error { return f.err }
func (f failingStore) Ping(context.Context) error                                { return f.err }

func TestService_WrapsStorageErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := application.Service{Store: failingStore{err: boom}}

	_, err := svc.Create(context.Background(), domain.TodoInput{Title: "x"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "create todo")
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
