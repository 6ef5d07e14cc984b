package progression

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSaver_CoalescesBurstIntoOneSave(t *testing.T) {
	var saves atomic.Int32
	sv := NewSaver(30*time.Millisecond, func() { saves.Add(1) })

	for i := 0; i < 10; i++ {
		sv.Schedule()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want exactly 1 per debounce window", got)
	}
}

func TestSaver_SeparateWindowsSaveSeparately(t *testing.T) {
	var saves atomic.Int32
	sv := NewSaver(10*time.Millisecond, func() { saves.Add(1) })

	sv.Schedule()
	time.Sleep(50 * time.Millisecond)
	sv.Schedule()
	time.Sleep(50 * time.Millisecond)

	if got := saves.Load(); got != 2 {
		t.Errorf("saves = %d, want 2", got)
	}
}

func TestSaver_FlushSavesImmediatelyAndCancelsTimer(t *testing.T) {
	var saves atomic.Int32
	sv := NewSaver(time.Hour, func() { saves.Add(1) })

	sv.Schedule()
	sv.Flush()
	if got := saves.Load(); got != 1 {
		t.Fatalf("saves after flush = %d, want 1", got)
	}

	// The pending timer was consumed; no second save arrives.
	time.Sleep(30 * time.Millisecond)
	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want still 1", got)
	}
}

func TestSaver_FlushWithoutPendingIsNoOp(t *testing.T) {
	var saves atomic.Int32
	sv := NewSaver(time.Hour, func() { saves.Add(1) })

	sv.Flush()
	if got := saves.Load(); got != 0 {
		t.Errorf("saves = %d, want 0 with nothing pending", got)
	}
}

func TestSaver_StopDiscardsPendingSave(t *testing.T) {
	var saves atomic.Int32
	sv := NewSaver(20*time.Millisecond, func() { saves.Add(1) })

	sv.Schedule()
	sv.Stop()
	time.Sleep(60 * time.Millisecond)
	if got := saves.Load(); got != 0 {
		t.Errorf("saves = %d, want 0 after Stop", got)
	}
}
