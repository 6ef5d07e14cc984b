package progression

import (
	"sync"
	"time"
)

// Saver coalesces rapid save requests into a single trailing write. Each
// Schedule call replaces the pending one, so a burst of events results in
// exactly one save per quiet window, and the save callback always observes
// the newest state. Flush forces the pending save immediately; Stop
// discards it.
type Saver struct {
	mu    sync.Mutex
	delay time.Duration
	save  func()
	timer *time.Timer
}

// NewSaver returns a Saver that invokes save after delay of inactivity.
func NewSaver(delay time.Duration, save func()) *Saver {
	return &Saver{delay: delay, save: save}
}

// Schedule arms the save timer, extending any pending window.
func (sv *Saver) Schedule() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.timer != nil {
		sv.timer.Reset(sv.delay)
		return
	}
	sv.timer = time.AfterFunc(sv.delay, sv.fire)
}

func (sv *Saver) fire() {
	sv.mu.Lock()
	sv.timer = nil
	sv.mu.Unlock()
	sv.save()
}

// Flush cancels any pending timer and saves synchronously.
func (sv *Saver) Flush() {
	sv.mu.Lock()
	pending := sv.timer != nil
	if pending {
		sv.timer.Stop()
		sv.timer = nil
	}
	sv.mu.Unlock()
	if pending {
		sv.save()
	}
}

// Stop discards any pending save without writing.
func (sv *Saver) Stop() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
}
