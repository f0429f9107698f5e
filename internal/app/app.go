// Package app wires the edgelive pipeline together: the still-image lane with
// debounced reprocessing, the live webcam lane, and the mode state machine
// that owns the camera.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/capture"
	"github.com/ayusman/edgelive/internal/imaging"
	"github.com/ayusman/edgelive/internal/remote"
	"github.com/ayusman/edgelive/internal/session"
	"github.com/ayusman/edgelive/internal/store"
)

// DefaultFrameInterval is the pause between live frames.
const DefaultFrameInterval = 100 * time.Millisecond

// ErrClosed is returned by operations on an App that has been closed.
var ErrClosed = errors.New("app closed")

// Config holds configuration options for the application.
type Config struct {
	// Service is the remote edge-detection service. Required.
	Service remote.Service
	// Log records every request and session. Optional.
	Log *store.Store
	// Camera overrides the device selected by CameraID.
	Camera   capture.Camera
	CameraID int

	Debounce      time.Duration
	FrameInterval time.Duration
	// MotionThresh is the percentage of changed pixels below which a live
	// frame is not re-sent when parameters are unchanged. Zero disables it.
	MotionThresh float64
	// MaxImageEdge bounds uploaded stills; larger images are downscaled.
	// Negative disables resizing.
	MaxImageEdge int
	// FrameReady gates each live capture. Nil means always ready.
	FrameReady func() bool

	Clock  Clock
	Logger zerolog.Logger
}

// App is the main application that orchestrates both pipeline lanes.
type App struct {
	config  Config
	service remote.Service
	store   *session.Store
	buffers *buffer.Manager
	camera  capture.Camera
	clock   Clock
	log     zerolog.Logger
	events  *broadcaster

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	spawnMu  sync.Mutex
	stopping bool

	upload   *lane
	webcam   *lane
	debounce *debouncer

	histMu    sync.Mutex
	histogram Histogram

	// modeMu serializes mode transitions.
	modeMu  sync.Mutex
	state   State
	notice  string
	live    *liveRun
	liveGen uint64
	closed  bool

	// lastDone closes when the most recent live run has exited.
	lastDone  <-chan struct{}
	activeGen atomic.Uint64

	unsubscribe func()
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Service == nil {
		return nil, errors.New("app: service is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.MaxImageEdge == 0 {
		config.MaxImageEdge = imaging.DefaultMaxEdge
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	if config.Camera == nil {
		config.Camera = capture.NewCamera(config.CameraID)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:  config,
		service: config.Service,
		store:   session.NewStore(),
		camera:  config.Camera,
		clock:   config.Clock,
		log:     config.Logger.With().Str("component", "app").Logger(),
		events:  newBroadcaster(),
		ctx:     ctx,
		cancel:  cancel,
		upload:  newLane(buffer.LaneUpload),
		webcam:  newLane(buffer.LaneWebcam),
		state:   StateIdle,
	}
	a.buffers = buffer.NewManager(a.onRelease)
	a.debounce = newDebouncer(a.clock, config.Debounce, a.processUpload)
	a.unsubscribe = a.store.Subscribe(a.onChange)

	return a, nil
}

// Close stops the live loop, releases the camera and every buffer, and waits
// for outstanding requests. In-flight requests are cancelled.
func (a *App) Close() error {
	a.modeMu.Lock()
	if a.closed {
		a.modeMu.Unlock()
		return nil
	}
	a.closed = true
	a.stopLive()
	err := a.releaseCamera()
	a.modeMu.Unlock()

	a.unsubscribe()
	a.debounce.Cancel()
	a.upload.invalidate()
	a.webcam.invalidate()

	a.spawnMu.Lock()
	a.stopping = true
	a.spawnMu.Unlock()

	a.cancel()
	a.wg.Wait()

	a.buffers.ReleaseAll()
	a.events.closeAll()

	a.log.Info().Msg("pipeline stopped")
	return err
}

// Session returns the session/parameter store. Callers mutate intent through
// it; the pipeline reacts to its change notifications.
func (a *App) Session() *session.Store {
	return a.store
}

// Buffers returns the display buffer manager.
func (a *App) Buffers() *buffer.Manager {
	return a.buffers
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Events subscribes to pipeline events. The returned function ends the
// subscription and closes the channel.
func (a *App) Events() (<-chan Event, func()) {
	return a.events.subscribe()
}

// Histogram returns the histogram of the current session, if one has arrived.
func (a *App) Histogram() (Histogram, bool) {
	current := a.store.Snapshot().SessionID

	a.histMu.Lock()
	defer a.histMu.Unlock()

	if current == "" || a.histogram.SessionID != current {
		return Histogram{}, false
	}
	return a.histogram, true
}

// Epoch returns the latest issued epoch of a lane.
func (a *App) Epoch(l buffer.Lane) uint64 {
	if l == buffer.LaneWebcam {
		return a.webcam.Epoch()
	}
	return a.upload.Epoch()
}

func (a *App) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = a.clock.Now()
	}
	a.events.publish(ev)
}

func (a *App) onRelease(buf *buffer.Buffer) {
	a.log.Debug().
		Str("lane", string(buf.Lane)).
		Str("buffer", buf.ID).
		Uint64("epoch", buf.Epoch).
		Msg("buffer released")
}

// onChange reacts to store mutations. It must not mutate the store.
func (a *App) onChange(c session.Change) {
	if c.SessionChanged() && !c.Next.HasSession() {
		a.debounce.Cancel()
		a.upload.invalidate()
		return
	}
	if c.Next.HasSession() && (c.ParamsChanged() || c.SessionChanged()) {
		a.debounce.Trigger()
	}
}

// contentType sniffs the service's result bytes.
func contentType(data []byte) string {
	return http.DetectContentType(data)
}
