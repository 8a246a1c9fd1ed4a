package consultation

import (
	"sync"
	"testing"
)

func TestMaxRequestTextLength(t *testing.T) {
	if maxRequestTextLength <= 0 {
		t.Fatal("maxRequestTextLength must be positive")
	}
}

func TestEngine_LockForReturnsSameMutexForSameID(t *testing.T) {
	e := &Engine{locks: make(map[int64]*sync.Mutex)}
	a := e.lockFor(42)
	b := e.lockFor(42)
	if a != b {
		t.Fatal("lockFor should return the same mutex for the same consultation id")
	}
	c := e.lockFor(43)
	if a == c {
		t.Fatal("lockFor should return distinct mutexes for distinct ids")
	}
}
