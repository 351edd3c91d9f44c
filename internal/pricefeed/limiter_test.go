package pricefeed

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowLimiter_AdmitsUpToLimit(t *testing.T) {
	l := NewSlidingWindowLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if got := l.InFlight(); got != 3 {
		t.Errorf("InFlight = %d, want 3", got)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("fourth call within window should block until ctx expires")
	}
}

func TestSlidingWindowLimiter_SlotFreesAfterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(2, time.Second)
	l.now = func() time.Time { return now }

	if _, ok := l.tryAcquire(); !ok {
		t.Fatal("first acquire should succeed")
	}
	now = now.Add(400 * time.Millisecond)
	if _, ok := l.tryAcquire(); !ok {
		t.Fatal("second acquire should succeed")
	}

	wait, ok := l.tryAcquire()
	if ok {
		t.Fatal("third acquire should be refused")
	}
	if wait != 600*time.Millisecond {
		t.Errorf("wait = %v, want 600ms", wait)
	}

	now = now.Add(600 * time.Millisecond)
	if _, ok := l.tryAcquire(); !ok {
		t.Fatal("slot should free once the oldest call leaves the window")
	}
}

func TestSlidingWindowLimiter_Disabled(t *testing.T) {
	var l *SlidingWindowLimiter
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
	if err := NewSlidingWindowLimiter(0, time.Second).Wait(context.Background()); err != nil {
		t.Fatalf("zero limit should not block: %v", err)
	}
}
