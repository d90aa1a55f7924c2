// Package background runs fire-and-forget tasks after a response has been
// sent. Tasks have no retry and no observable outcome besides logs.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// ErrClosed is logged when a task is submitted after Close.
var ErrClosed = errors.New("background runner closed")

// Task receives the runner's context, which is cancelled by Close.
type Task func(ctx context.Context) error

type Runner struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{logger: logger, ctx: ctx, cancel: cancel}
}

// Submit starts task on its own goroutine and returns its id immediately.
// Failures and panics are logged, never returned.
func (r *Runner) Submit(name string, task Task) string {
	id := uuid.NewString()
	log := r.logger.With("task", name, "task_id", id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Warn("background task dropped", "err", ErrClosed)
		return id
	}

	r.wg.Go(func() {
		start := time.Now()
		var pc panics.Catcher
		var err error
		pc.Try(func() { err = task(r.ctx) })

		switch rec := pc.Recovered(); {
		case rec != nil:
			log.Error("background task panicked", "panic", rec.Value, "stack", string(rec.Stack))
		case err != nil:
			log.Error("background task failed", "err", err, "duration", time.Since(start))
		default:
			log.Debug("background task done", "duration", time.Since(start))
		}
	})
	return id
}

// Close stops accepting tasks, cancels the context of running ones and waits
// for them until ctx is done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
