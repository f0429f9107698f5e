package app

import (
	"sync"

	"github.com/ayusman/edgelive/internal/buffer"
)

// lane tracks request epochs for one pipeline lane. mu is also held while a
// result is checked and published, so bumping the epoch and publishing never
// interleave.
type lane struct {
	name buffer.Lane

	mu       sync.Mutex
	epoch    uint64
	inFlight bool
	pending  bool
}

func newLane(name buffer.Lane) *lane {
	return &lane{name: name}
}

// Epoch returns the latest issued epoch.
func (l *lane) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// invalidate makes every outstanding result stale and drops queued work.
func (l *lane) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	l.pending = false
}

// publishIf runs publish with the lane locked if epoch is still the latest
// and ok agrees. It reports whether publish ran.
func (l *lane) publishIf(epoch uint64, ok func() bool, publish func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if epoch != l.epoch || (ok != nil && !ok()) {
		return false
	}
	publish()
	return true
}
