package app

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiescence window for still-image reprocessing.
const DefaultDebounce = 300 * time.Millisecond

// debouncer runs fire once the window has passed without another Trigger.
// Each timer carries a sequence number so a callback that was already
// running when it got replaced does nothing.
type debouncer struct {
	clock  Clock
	window time.Duration
	fire   func()

	mu    sync.Mutex
	timer Timer
	seq   uint64
}

func newDebouncer(clock Clock, window time.Duration, fire func()) *debouncer {
	return &debouncer{clock: clock, window: window, fire: fire}
}

// Trigger restarts the quiescence window.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.fire()
	})
}

// Cancel drops the pending timer, if any.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Pending reports whether a timer is waiting to fire.
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
