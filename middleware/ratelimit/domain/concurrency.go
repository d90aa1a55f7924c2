package domain

import "context"

// SlotPool is a resource with finite capacity, such as in-flight requests.
//
// Acquire blocks until a slot is free or ctx is done. On success it returns a
// release func that must be called exactly once.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
