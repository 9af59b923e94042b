package store

import (
	"sync"
	"time"
)

// debouncer is an explicit cancelable timer handle for the trailing
// stop-typing signal. Canceling is an explicit call; a canceled call never
// runs, so a room change cannot leak a stale signal for the wrong room.
// Stopping the timer alone is not enough: a timer that has fired but whose
// callback has not run yet cannot be stopped, so each schedule carries a
// generation that the callback checks before running fn.
type debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// Touch (re)schedules fn to run once the delay elapses with no further Touch.
func (d *debouncer) Touch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	scheduled := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.gen != scheduled {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel suppresses the pending call, if any, and reports whether one was
// pending. The call is suppressed even when its timer already fired.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}
