package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNew_CoercesMaxAttempts(t *testing.T) {
	l := New(0, time.Minute)
	if l.maxAttempts != 1 {
		t.Fatalf("maxAttempts = %d; want 1", l.maxAttempts)
	}
	l = New(-3, time.Minute)
	if l.maxAttempts != 1 {
		t.Fatalf("maxAttempts = %d; want 1", l.maxAttempts)
	}
}

func TestHit_ExhaustsWindow(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Hit("a") {
			t.Fatalf("hit %d rejected; want allowed", i+1)
		}
	}
	if l.Hit("a") {
		t.Fatalf("4th hit allowed; want rejected")
	}
	// Other keys are unaffected.
	if !l.Hit("b") {
		t.Fatalf("fresh key rejected")
	}
}

func TestHit_WindowSlides(t *testing.T) {
	l := New(2, 50*time.Millisecond)

	if !l.Hit("a") || !l.Hit("a") {
		t.Fatalf("initial hits rejected")
	}
	if l.Hit("a") {
		t.Fatalf("over-limit hit allowed")
	}

	time.Sleep(60 * time.Millisecond)

	if !l.Hit("a") {
		t.Fatalf("hit after window elapsed rejected")
	}
}

func TestIsAllowed_HasNoSideEffect(t *testing.T) {
	l := New(1, time.Minute)

	for i := 0; i < 5; i++ {
		if !l.IsAllowed("a") {
			t.Fatalf("IsAllowed consumed an attempt on call %d", i+1)
		}
	}
	l.Record("a")
	if l.IsAllowed("a") {
		t.Fatalf("IsAllowed = true after window filled")
	}
}

func TestRecord_CountsOverLimit(t *testing.T) {
	l := New(2, time.Minute)

	// Record ignores the limit entirely.
	for i := 0; i < 4; i++ {
		l.Record("a")
	}
	if got := l.Remaining("a"); got != 0 {
		t.Fatalf("Remaining = %d; want 0", got)
	}
	if l.Hit("a") {
		t.Fatalf("Hit allowed after over-recording")
	}
}

func TestRemaining(t *testing.T) {
	l := New(3, time.Minute)

	if got := l.Remaining("a"); got != 3 {
		t.Fatalf("Remaining fresh = %d; want 3", got)
	}
	l.Hit("a")
	l.Hit("a")
	if got := l.Remaining("a"); got != 1 {
		t.Fatalf("Remaining = %d; want 1", got)
	}
}

func TestHit_AtomicUnderConcurrency(t *testing.T) {
	const (
		limit      = 100
		goroutines = 400
	)
	l := New(limit, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.Hit("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed != limit {
		t.Fatalf("allowed = %d; want exactly %d", allowed, limit)
	}
}

func TestPrune_DeletesEmptyKeys(t *testing.T) {
	l := New(5, 10*time.Millisecond)
	for i := 0; i < 50; i++ {
		l.Record(fmt.Sprintf("key-%d", i))
	}
	time.Sleep(20 * time.Millisecond)

	l.mu.Lock()
	for i := 0; i < 50; i++ {
		l.prune(fmt.Sprintf("key-%d", i))
	}
	size := len(l.store)
	l.mu.Unlock()

	if size != 0 {
		t.Fatalf("store holds %d stale keys; want 0", size)
	}
}
