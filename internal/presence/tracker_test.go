package presence

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestTracker_CancelGraceStopsTimer(t *testing.T) {
	grace := 20 * time.Millisecond
	fired := make(chan struct{}, 1)

	st := &facultyState{events: make(chan Event, 1)}
	st.graceTimer = time.AfterFunc(grace, func() { fired <- struct{}{} })

	tr := &Tracker{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), grace: grace}
	tr.cancelGrace(st)

	select {
	case <-fired:
		t.Fatal("grace timer fired after being cancelled")
	case <-time.After(grace * 3):
	}
	if st.graceTimer != nil {
		t.Fatal("expected graceTimer to be cleared")
	}
}

func TestTracker_GraceTimerFiresAfterInterval(t *testing.T) {
	grace := 20 * time.Millisecond
	var mu sync.Mutex
	var fired bool

	st := &facultyState{events: make(chan Event, 1)}
	st.graceTimer = time.AfterFunc(grace, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	time.Sleep(grace * 3)
	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatal("expected grace timer to fire")
	}
}

func TestTracker_CancelGraceThenRearmFiresOnce(t *testing.T) {
	grace := 30 * time.Millisecond
	fireCount := 0
	var mu sync.Mutex

	tr := &Tracker{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), grace: grace}
	st := &facultyState{events: make(chan Event, 1)}

	newTimer := func() *time.Timer {
		return time.AfterFunc(grace, func() {
			mu.Lock()
			fireCount++
			mu.Unlock()
		})
	}

	st.graceTimer = newTimer()
	time.Sleep(grace / 2)
	tr.cancelGrace(st)
	st.graceTimer = newTimer()

	time.Sleep(grace * 3)
	mu.Lock()
	defer mu.Unlock()
	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1 (first timer should have been cancelled before firing)", fireCount)
	}
}
