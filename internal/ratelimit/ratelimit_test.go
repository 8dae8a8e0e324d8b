package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitEnforcesInterval(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	elapsed := time.Since(start)
	// First token is free; the next two must each wait ~50ms.
	if elapsed < 90*time.Millisecond {
		t.Errorf("3 calls took %v, want >= ~100ms", elapsed)
	}
}

func TestIntervalSharedAcrossGoroutines(t *testing.T) {
	l := New(30 * time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx); err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// All 4 calls across goroutines need at least 3 intervals total.
	total := stamps[len(stamps)-1].Sub(stamps[0])
	if total < 60*time.Millisecond {
		t.Errorf("4 concurrent calls completed in %v, want >= ~90ms spread", total)
	}
}

func TestWaitCancelled(t *testing.T) {
	l := New(time.Hour)
	ctx := context.Background()
	l.Wait(ctx) // consume the free token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error when context expires before the next token")
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("disabled limiter should not block")
	}
}
