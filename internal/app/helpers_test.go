package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/capture"
	"github.com/ayusman/edgelive/internal/params"
	"github.com/ayusman/edgelive/internal/remote"
	"github.com/ayusman/edgelive/internal/store"
)

// fakeClock only moves when Advance is called. Due AfterFunc callbacks run
// synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	when  time.Time
	f     func()
	ch    chan time.Time
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, &fakeTimer{clock: c, when: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, keep []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.when.After(now):
			t.done = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	for _, t := range due {
		if t.f != nil {
			t.f()
		} else {
			t.ch <- now
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

type processReply struct {
	data []byte
	err  error
}

type processCall struct {
	sessionID string
	set       params.Set
	reply     chan processReply
}

func (c processCall) respond(data string, err error) {
	c.reply <- processReply{data: []byte(data), err: err}
}

// fakeService hands Process calls to the test, which answers them, and
// answers ProcessLive through an optional function.
type fakeService struct {
	calls chan processCall

	mu        sync.Mutex
	uploadID  string
	uploadErr error
	uploads   int
	histogram []int
	histCalls int

	live            func(n int, frame []byte, set params.Set) ([]byte, error)
	liveCalls       int
	liveInFlight    int
	liveMaxInFlight int
}

func newFakeService() *fakeService {
	bins := make([]int, remote.HistogramBins)
	bins[0], bins[8], bins[255] = 10, 5, 40
	return &fakeService{
		calls:     make(chan processCall, 16),
		uploadID:  "img-1",
		histogram: bins,
	}
}

func (f *fakeService) Upload(ctx context.Context, filename string, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadID, nil
}

func (f *fakeService) Process(ctx context.Context, sessionID string, set params.Set) ([]byte, error) {
	call := processCall{sessionID: sessionID, set: set, reply: make(chan processReply, 1)}
	f.calls <- call

	select {
	case r := <-call.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeService) ProcessLive(ctx context.Context, frame []byte, set params.Set) ([]byte, error) {
	f.mu.Lock()
	f.liveCalls++
	n := f.liveCalls
	f.liveInFlight++
	if f.liveInFlight > f.liveMaxInFlight {
		f.liveMaxInFlight = f.liveInFlight
	}
	fn := f.live
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.liveInFlight--
		f.mu.Unlock()
	}()

	if fn == nil {
		return []byte("live"), nil
	}
	return fn(n, frame, set)
}

func (f *fakeService) Histogram(ctx context.Context, sessionID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histCalls++
	return f.histogram, nil
}

func (f *fakeService) LiveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveCalls
}

func (f *fakeService) MaxLiveInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveMaxInFlight
}

func expectCall(t *testing.T, f *fakeService) processCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a process request")
		return processCall{}
	}
}

func expectNoCall(t *testing.T, f *fakeService) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected process request with %+v", c.set)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newTestApp builds an App around fakes. Unset fields of config get a fake
// service, a fake clock, a mock camera and an in-memory request log.
func newTestApp(t *testing.T, config Config) (*App, *fakeService) {
	t.Helper()

	svc, _ := config.Service.(*fakeService)
	if svc == nil {
		svc = newFakeService()
		config.Service = svc
	}
	if config.Clock == nil {
		config.Clock = newFakeClock()
	}
	if config.Camera == nil {
		config.Camera = capture.NewMockCamera(nil, false)
	}
	if config.Log == nil {
		log, err := store.New("")
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}
		t.Cleanup(func() { log.Close() })
		config.Log = log
	}
	config.Logger = zerolog.Nop()

	a, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return a, svc
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16; i++ {
		img.Set(i, i, color.White)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func outcomeCount(t *testing.T, a *App, lane string, outcome store.Outcome) int {
	t.Helper()
	counts, err := a.config.Log.Requests().Counts(lane)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	return counts[outcome]
}
