package infra

import "context"

// Semaphore is a channel-backed domain.SlotPool.
type Semaphore struct {
	slots chan struct{}
}

func NewSemaphore(capacity int) *Semaphore {
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

func (s *Semaphore) Capacity() int { return cap(s.slots) }

// InFlight is the number of slots currently taken.
func (s *Semaphore) InFlight() int { return len(s.slots) }

// Acquire implements domain.SlotPool.
func (s *Semaphore) Acquire(ctx context.Context) (func(), bool) {
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}
