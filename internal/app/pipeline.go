package app

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/capture"
	"github.com/ayusman/edgelive/internal/params"
	"github.com/ayusman/edgelive/internal/session"
	"github.com/ayusman/edgelive/internal/store"
)

// liveRun is one activation of the live loop.
type liveRun struct {
	gen  uint64
	stop chan struct{}
	done chan struct{}
}

// lastSend remembers the previous live request for motion gating.
type lastSend struct {
	params params.Set
	ok     bool
}

// startLive launches a new live loop. Callers hold modeMu.
func (a *App) startLive() {
	a.liveGen++
	run := &liveRun{
		gen:  a.liveGen,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	prev := a.lastDone
	a.live = run
	a.lastDone = run.done
	a.activeGen.Store(run.gen)

	if !a.spawn(func() { a.runLive(run, prev) }) {
		close(run.done)
	}
}

// stopLive signals the live loop to end. It does not wait: a request in
// flight completes in the background and its result is dropped. Callers hold
// modeMu.
func (a *App) stopLive() {
	if a.live == nil {
		return
	}
	a.activeGen.Store(0)
	close(a.live.stop)
	a.live = nil
}

func (a *App) liveActive(gen uint64) bool {
	return a.activeGen.Load() == gen
}

// runLive is the self-paced capture loop. It checks that it is still the
// active run on entry, after capture, after the request and before waiting
// for the next tick.
//
// Pipeline:
// 1. Wait for the previous run's in-flight request, if any
// 2. Capture and encode a frame; skipped frames are not failures
// 3. Snapshot the parameters at send time and bump the lane epoch
// 4. Send and wait for the result
// 5. Publish only if this run is active and the epoch is still current
// 6. Wait the frame interval
func (a *App) runLive(run *liveRun, prev <-chan struct{}) {
	defer close(run.done)

	log := a.log.With().
		Str("lane", string(buffer.LaneWebcam)).
		Uint64("generation", run.gen).
		Logger()

	if prev != nil {
		select {
		case <-prev:
		case <-run.stop:
			return
		}
	}

	var motion *capture.MotionDetector
	if a.config.MotionThresh > 0 {
		motion = capture.NewMotionDetector(a.config.MotionThresh)
		defer motion.Close()
	}

	log.Info().Msg("live loop started")
	defer log.Info().Msg("live loop stopped")

	var last lastSend
	for {
		if !a.liveActive(run.gen) {
			return
		}

		a.liveTick(run, motion, &last, log)

		if !a.liveActive(run.gen) {
			return
		}

		select {
		case <-run.stop:
			return
		case <-a.clock.After(a.config.FrameInterval):
		}
	}
}

// liveTick runs one capture-send-publish iteration.
func (a *App) liveTick(run *liveRun, motion *capture.MotionDetector, last *lastSend, log zerolog.Logger) {
	if a.config.FrameReady != nil && !a.config.FrameReady() {
		return
	}

	frame, err := capture.Grab(a.camera, motion)
	if err != nil {
		if errors.Is(err, capture.ErrFrameSkipped) || !a.liveActive(run.gen) {
			return
		}
		log.Warn().Err(err).Msg("frame capture failed")
		return
	}
	if !a.liveActive(run.gen) {
		return
	}

	st := a.store.Snapshot()
	if !frame.Changed && last.ok && st.Params == last.params {
		return
	}

	a.webcam.mu.Lock()
	a.webcam.epoch++
	a.webcam.inFlight = true
	snap := snapshot{State: session.State{Mode: st.Mode, Params: st.Params}, Epoch: a.webcam.epoch}
	a.webcam.mu.Unlock()

	start := a.clock.Now()
	data, err := a.service.ProcessLive(a.ctx, frame.Data, snap.Params)
	took := a.clock.Now().Sub(start)

	a.webcam.mu.Lock()
	a.webcam.inFlight = false
	a.webcam.mu.Unlock()

	last.params = snap.Params
	last.ok = err == nil

	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		a.record(buffer.LaneWebcam, snap, store.OutcomeFailed, err, took)
		if a.liveActive(run.gen) {
			log.Warn().Err(err).Uint64("epoch", snap.Epoch).Msg("live processing failed")
			a.emit(Event{Type: EventError, Lane: buffer.LaneWebcam, Epoch: snap.Epoch, Message: err.Error()})
		}
		return
	}

	var buf *buffer.Buffer
	applied := a.webcam.publishIf(snap.Epoch,
		func() bool { return a.liveActive(run.gen) },
		func() {
			buf = buffer.New(buffer.LaneWebcam, snap.Epoch, contentType(data), data)
			a.buffers.Publish(buffer.LaneWebcam, buf)
		},
	)
	if !applied {
		log.Debug().Uint64("epoch", snap.Epoch).Msg("stale frame discarded")
		a.record(buffer.LaneWebcam, snap, store.OutcomeDiscarded, nil, took)
		return
	}

	a.record(buffer.LaneWebcam, snap, store.OutcomeApplied, nil, took)
	a.emit(Event{Type: EventResult, Lane: buffer.LaneWebcam, Epoch: snap.Epoch, BufferID: buf.ID})
}
