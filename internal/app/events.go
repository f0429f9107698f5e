package app

import (
	"sync"
	"time"

	"github.com/ayusman/edgelive/internal/buffer"
)

// EventType identifies what an Event reports.
type EventType string

const (
	// EventState is sent on every mode state transition.
	EventState EventType = "state"
	// EventResult is sent when a lane publishes a new buffer.
	EventResult EventType = "result"
	// EventHistogram is sent when a histogram for the current session arrives.
	EventHistogram EventType = "histogram"
	// EventNotice carries a user-visible message, such as a camera failure.
	EventNotice EventType = "notice"
	// EventError reports a failed request. Nothing else changes.
	EventError EventType = "error"
)

// eventBuffer is the per-subscriber channel capacity. Slow subscribers lose
// events instead of blocking the pipeline.
const eventBuffer = 32

// Event is a notification for local viewers.
type Event struct {
	Type     EventType   `json:"type"`
	State    State       `json:"state,omitempty"`
	Lane     buffer.Lane `json:"lane,omitempty"`
	Epoch    uint64      `json:"epoch,omitempty"`
	BufferID string      `json:"buffer_id,omitempty"`
	Message  string      `json:"message,omitempty"`
	Time     time.Time   `json:"time"`
}

type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, eventBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeAll ends every subscription.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
