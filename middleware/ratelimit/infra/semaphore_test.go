package infra

import (
	"context"
	"testing"
	"time"
)

func TestSemaphore_BlocksAtCapacityUntilRelease(t *testing.T) {
	s := NewSemaphore(1)

	release, ok := s.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if s.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", s.InFlight())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := s.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	if _, ok := s.Acquire(context.Background()); !ok {
		t.Fatalf("expected acquire to succeed after release")
	}
}
