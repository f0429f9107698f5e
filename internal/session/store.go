// Package session holds the current user intent: pipeline mode, remote
// session id and parameter set. It performs no I/O.
package session

import (
	"sync"

	"github.com/ayusman/edgelive/internal/params"
)

// Mode is the active pipeline mode.
type Mode string

const (
	// ModeUpload processes a still image held by the remote service.
	ModeUpload Mode = "upload"
	// ModeWebcam streams frames from the local camera.
	ModeWebcam Mode = "webcam"
)

// State is an immutable snapshot of the store.
type State struct {
	Mode      Mode
	SessionID string
	Params    params.Set
}

// HasSession reports whether a remote session is live.
func (s State) HasSession() bool {
	return s.SessionID != ""
}

// Change describes one mutation of the store.
type Change struct {
	Prev State
	Next State
}

// ParamsChanged reports whether the algorithm or any parameter changed.
func (c Change) ParamsChanged() bool {
	return c.Prev.Params != c.Next.Params
}

// SessionChanged reports whether the session id changed.
func (c Change) SessionChanged() bool {
	return c.Prev.SessionID != c.Next.SessionID
}

// ModeChanged reports whether the mode changed.
func (c Change) ModeChanged() bool {
	return c.Prev.Mode != c.Next.Mode
}

// Listener receives store changes. Listeners are called in mutation order and
// must not mutate the store from inside the callback.
type Listener func(Change)

// Store is the single source of truth for current intent.
type Store struct {
	// notifyMu serializes mutation+dispatch so listeners see changes in order.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	state    State
	nextID   int
	subs     map[int]Listener
}

// NewStore creates a Store in upload mode with default parameters and no session.
func NewStore() *Store {
	return &Store{
		state: State{
			Mode:   ModeUpload,
			Params: params.Default(),
		},
		subs: make(map[int]Listener),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetAlgorithm selects a new algorithm.
func (s *Store) SetAlgorithm(a params.Algorithm) {
	s.apply(func(st State) State {
		st.Params = st.Params.WithAlgorithm(a)
		return st
	})
}

// SetParams replaces the whole parameter set. Values are clamped.
func (s *Store) SetParams(p params.Set) {
	s.apply(func(st State) State {
		st.Params = p.Clamp()
		return st
	})
}

// UpdateParams derives a new parameter set from the current one.
func (s *Store) UpdateParams(fn func(params.Set) params.Set) {
	s.apply(func(st State) State {
		st.Params = fn(st.Params).Clamp()
		return st
	})
}

// SetSession records the id of a freshly accepted still image.
func (s *Store) SetSession(id string) {
	s.apply(func(st State) State {
		st.SessionID = id
		return st
	})
}

// ClearSession drops the current session.
func (s *Store) ClearSession() {
	s.SetSession("")
}

// SetMode switches the pipeline mode.
func (s *Store) SetMode(m Mode) {
	s.apply(func(st State) State {
		st.Mode = m
		return st
	})
}

// Reset clears the session and returns to upload mode. Parameters are kept.
func (s *Store) Reset() {
	s.apply(func(st State) State {
		st.SessionID = ""
		st.Mode = ModeUpload
		return st
	})
}

// apply runs a reducer and notifies listeners if the state changed.
func (s *Store) apply(reduce func(State) State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := reduce(prev)
	if next == prev {
		s.mu.Unlock()
		return
	}
	s.state = next

	listeners := make([]Listener, 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	change := Change{Prev: prev, Next: next}
	for _, fn := range listeners {
		fn(change)
	}
}
