package buffer

import (
	"sync"
)

// ReleaseFunc is called exactly once for every buffer the manager releases,
// after it has stopped being current.
type ReleaseFunc func(*Buffer)

// Manager owns the current buffer of each lane. It is the only writer of lane
// buffers.
type Manager struct {
	mu        sync.Mutex
	current   map[Lane]*Buffer
	onRelease ReleaseFunc
}

// NewManager creates an empty Manager. onRelease may be nil.
func NewManager(onRelease ReleaseFunc) *Manager {
	return &Manager{
		current:   make(map[Lane]*Buffer),
		onRelease: onRelease,
	}
}

// Publish makes buf the current buffer of lane and releases the buffer it
// replaces. Lanes never share buffers, so the previous one is always released.
func (m *Manager) Publish(lane Lane, buf *Buffer) {
	m.mu.Lock()
	prev := m.current[lane]
	if prev == buf {
		m.mu.Unlock()
		return
	}
	m.current[lane] = buf
	m.mu.Unlock()

	m.release(prev)
}

// Current returns the current buffer of lane, or nil.
func (m *Manager) Current(lane Lane) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[lane]
}

// Read returns a copy of the current buffer's bytes together with its handle.
// ok is false when the lane has nothing to show.
func (m *Manager) Read(lane Lane) (buf *Buffer, data []byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf = m.current[lane]
	if buf == nil {
		return nil, nil, false
	}
	data = buf.Bytes()
	return buf, data, data != nil
}

// ReleaseLane clears and releases the current buffer of lane.
func (m *Manager) ReleaseLane(lane Lane) {
	m.mu.Lock()
	prev := m.current[lane]
	delete(m.current, lane)
	m.mu.Unlock()

	m.release(prev)
}

// ReleaseAll clears and releases every lane's buffer.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	prev := make([]*Buffer, 0, len(m.current))
	for lane, buf := range m.current {
		prev = append(prev, buf)
		delete(m.current, lane)
	}
	m.mu.Unlock()

	for _, buf := range prev {
		m.release(buf)
	}
}

func (m *Manager) release(buf *Buffer) {
	if buf == nil {
		return
	}
	if buf.release() && m.onRelease != nil {
		m.onRelease(buf)
	}
}
