package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/imaging"
	"github.com/ayusman/edgelive/internal/remote"
	"github.com/ayusman/edgelive/internal/session"
	"github.com/ayusman/edgelive/internal/store"
)

// UploadResult describes an accepted still image.
type UploadResult struct {
	SessionID string `json:"session_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Resized   bool   `json:"resized"`
}

// snapshot is the intent a request was issued with.
type snapshot struct {
	session.State
	Epoch uint64
}

// Upload prepares a still image, hands it to the service and makes it the
// current session. Reprocessing follows through the debounce window. Failures
// wrap remote.ErrUpload and leave the previous session in place.
func (a *App) Upload(ctx context.Context, filename string, data []byte) (UploadResult, error) {
	maxEdge := a.config.MaxImageEdge
	if maxEdge < 0 {
		maxEdge = 0
	}

	prepared, err := imaging.Prepare(filename, data, maxEdge)
	if err != nil {
		a.log.Warn().Err(err).Str("filename", filename).Msg("upload rejected")
		return UploadResult{}, fmt.Errorf("%w: %w", remote.ErrUpload, err)
	}

	id, err := a.service.Upload(ctx, prepared.Filename, prepared.Data)
	if err != nil {
		a.log.Warn().Err(err).Str("filename", filename).Msg("upload failed")
		a.emit(Event{Type: EventError, Lane: buffer.LaneUpload, Message: err.Error()})
		return UploadResult{}, err
	}

	a.modeMu.Lock()
	if a.closed {
		a.modeMu.Unlock()
		return UploadResult{}, ErrClosed
	}
	prev := a.store.Snapshot().SessionID
	a.store.SetSession(id)
	if a.state == StateIdle {
		a.setState(StateUploadReady)
	}
	a.modeMu.Unlock()

	a.recordSession(prev, id, prepared)

	a.log.Info().
		Str("session", id).
		Int("width", prepared.Width).
		Int("height", prepared.Height).
		Bool("resized", prepared.Resized).
		Msg("image accepted")

	return UploadResult{
		SessionID: id,
		Width:     prepared.Width,
		Height:    prepared.Height,
		Resized:   prepared.Resized,
	}, nil
}

// processUpload runs when the debounce window expires.
func (a *App) processUpload() {
	st := a.store.Snapshot()
	if !st.HasSession() {
		return
	}

	a.upload.mu.Lock()
	a.upload.epoch++
	if a.upload.inFlight {
		// The outstanding result is now stale; send again once it resolves.
		a.upload.pending = true
		epoch := a.upload.epoch
		a.upload.mu.Unlock()
		a.log.Debug().Str("lane", "upload").Uint64("epoch", epoch).Msg("request outstanding, queued")
		return
	}
	a.upload.inFlight = true
	snap := snapshot{State: st, Epoch: a.upload.epoch}
	a.upload.mu.Unlock()

	if !a.spawn(func() { a.runUpload(snap) }) {
		a.upload.mu.Lock()
		a.upload.inFlight = false
		a.upload.mu.Unlock()
	}
}

// runUpload issues requests for the upload lane until nothing is queued.
func (a *App) runUpload(snap snapshot) {
	for {
		sessionID := snap.SessionID
		a.spawn(func() { a.fetchHistogram(sessionID) })

		start := a.clock.Now()
		data, err := a.service.Process(a.ctx, snap.SessionID, snap.Params)
		a.finishUpload(snap, data, err, a.clock.Now().Sub(start))

		next, ok := a.nextUpload()
		if !ok {
			return
		}
		snap = next
	}
}

// nextUpload takes the queued request, if any, with a fresh snapshot.
func (a *App) nextUpload() (snapshot, bool) {
	a.upload.mu.Lock()
	defer a.upload.mu.Unlock()

	if !a.upload.pending || a.ctx.Err() != nil {
		a.upload.inFlight = false
		a.upload.pending = false
		return snapshot{}, false
	}
	a.upload.pending = false

	st := a.store.Snapshot()
	if !st.HasSession() {
		a.upload.inFlight = false
		return snapshot{}, false
	}
	a.upload.epoch++
	return snapshot{State: st, Epoch: a.upload.epoch}, true
}

func (a *App) finishUpload(snap snapshot, data []byte, err error, took time.Duration) {
	log := a.log.With().
		Str("lane", string(buffer.LaneUpload)).
		Uint64("epoch", snap.Epoch).
		Str("session", snap.SessionID).
		Logger()

	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("processing failed")
		a.record(buffer.LaneUpload, snap, store.OutcomeFailed, err, took)
		a.emit(Event{Type: EventError, Lane: buffer.LaneUpload, Epoch: snap.Epoch, Message: err.Error()})
		return
	}

	var buf *buffer.Buffer
	applied := a.upload.publishIf(snap.Epoch,
		func() bool { return a.store.Snapshot().SessionID == snap.SessionID },
		func() {
			buf = buffer.New(buffer.LaneUpload, snap.Epoch, contentType(data), data)
			a.buffers.Publish(buffer.LaneUpload, buf)
		},
	)
	if !applied {
		log.Debug().Msg("stale result discarded")
		a.record(buffer.LaneUpload, snap, store.OutcomeDiscarded, nil, took)
		return
	}

	a.record(buffer.LaneUpload, snap, store.OutcomeApplied, nil, took)
	a.emit(Event{Type: EventResult, Lane: buffer.LaneUpload, Epoch: snap.Epoch, BufferID: buf.ID})
}

// fetchHistogram is guarded by session only: a histogram describes the
// uploaded image, which does not change with parameters.
func (a *App) fetchHistogram(sessionID string) {
	bins, err := a.service.Histogram(a.ctx, sessionID)
	if err != nil {
		if a.ctx.Err() == nil {
			a.log.Warn().Err(err).Str("session", sessionID).Msg("histogram failed")
		}
		return
	}

	a.histMu.Lock()
	if a.store.Snapshot().SessionID != sessionID {
		a.histMu.Unlock()
		a.log.Debug().Str("session", sessionID).Msg("histogram for old session discarded")
		return
	}
	a.histogram = newHistogram(sessionID, bins)
	a.histMu.Unlock()

	a.emit(Event{Type: EventHistogram, Message: sessionID})
}

func (a *App) clearHistogram() {
	a.histMu.Lock()
	a.histogram = Histogram{}
	a.histMu.Unlock()
}

// spawn runs f on a tracked goroutine unless the app is shutting down.
func (a *App) spawn(f func()) bool {
	a.spawnMu.Lock()
	defer a.spawnMu.Unlock()

	if a.stopping {
		return false
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		f()
	}()
	return true
}
