package infra

import "time"

// DoneContext is the part of context.Context the janitors need.
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor runs sweep every interval until ctx is done.
// A non-positive interval disables it.
func startJanitor(ctx DoneContext, every time.Duration, sweep func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweep()
			}
		}
	}()
}
