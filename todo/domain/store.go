package domain

import "context"

// Session is one unit of work against storage. It is only valid inside the
// callback passed to Store.Session.
type Session interface {
	Insert(ctx context.Context, t *Todo) error
	// Get returns ErrNotFound when id does not exist.
	Get(ctx context.Context, id int64) (Todo, error)
	Update(ctx context.Context, t Todo) error
	// Delete returns ErrNotFound when id does not exist.
	Delete(ctx context.Context, id int64) error
	// List returns every todo ordered by id.
	List(ctx context.Context) ([]Todo, error)
}

// Store opens sessions. fn's changes are committed when it returns nil and
// rolled back on any error or panic; the session is released either way.
type Store interface {
	Session(ctx context.Context, fn func(Session) error) error
	Ping(ctx context.Context) error
}
