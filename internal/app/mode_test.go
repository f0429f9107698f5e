package app

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/edgelive/internal/capture"
	"github.com/ayusman/edgelive/internal/session"
)

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestEnterWebcam_CameraFailure(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	cam.SetOpenError(capture.ErrCameraUnavailable)
	a, _ := newTestApp(t, Config{Camera: cam})

	events, cancel := a.Events()
	defer cancel()

	err := a.EnterWebcam()
	if !errors.Is(err, ErrCameraAcquisition) || !errors.Is(err, capture.ErrCameraUnavailable) {
		t.Fatalf("EnterWebcam() error = %v", err)
	}

	if a.State() != StateUploadReady {
		t.Errorf("State() = %s, want %s", a.State(), StateUploadReady)
	}
	if a.Notice() == "" {
		t.Error("camera failure should leave a notice")
	}
	if cam.IsOpen() {
		t.Error("failed acquisition must not leave the camera open")
	}
	if a.Session().Snapshot().Mode != session.ModeUpload {
		t.Error("store should stay in upload mode")
	}

	var states []State
	sawNotice := false
	for _, ev := range drainEvents(events) {
		switch ev.Type {
		case EventState:
			states = append(states, ev.State)
		case EventNotice:
			sawNotice = true
		}
	}

	want := []State{StateWebcamInitializing, StateWebcamError, StateUploadReady}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}
	if !sawNotice {
		t.Error("expected a notice event")
	}
}

func TestEnterWebcam_AcquiresAndReleases(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam, Clock: realClock{}, FrameInterval: time.Millisecond})

	if err := a.EnterWebcam(); err != nil {
		t.Fatalf("EnterWebcam() error = %v", err)
	}
	if a.State() != StateWebcamActive {
		t.Errorf("State() = %s, want %s", a.State(), StateWebcamActive)
	}
	if !cam.IsOpen() {
		t.Error("camera should be open in webcam mode")
	}
	if a.Session().Snapshot().Mode != session.ModeWebcam {
		t.Error("store should be in webcam mode")
	}

	// Entering again is a no-op
	if err := a.EnterWebcam(); err != nil {
		t.Fatalf("second EnterWebcam() error = %v", err)
	}
	if cam.Opens() != 1 {
		t.Errorf("camera opened %d times, want 1", cam.Opens())
	}

	if err := a.EnterUpload(); err != nil {
		t.Fatalf("EnterUpload() error = %v", err)
	}
	if cam.IsOpen() {
		t.Error("camera should be released when leaving webcam mode")
	}
	if cam.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.Closes())
	}
	if a.State() != StateUploadReady {
		t.Errorf("State() = %s, want %s", a.State(), StateUploadReady)
	}
	if a.Session().Snapshot().Mode != session.ModeUpload {
		t.Error("store should be back in upload mode")
	}
}

func TestEnterUpload_NoopOutsideWebcam(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam})

	if err := a.EnterUpload(); err != nil {
		t.Fatalf("EnterUpload() error = %v", err)
	}
	if a.State() != StateIdle {
		t.Errorf("State() = %s, want %s", a.State(), StateIdle)
	}
	if cam.Opens() != 0 || cam.Closes() != 0 {
		t.Error("camera should not be touched")
	}
}

func TestReset_FromWebcam(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam, Clock: realClock{}, FrameInterval: time.Millisecond})

	if err := a.EnterWebcam(); err != nil {
		t.Fatalf("EnterWebcam() error = %v", err)
	}
	if err := a.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if cam.IsOpen() {
		t.Error("Reset should release the camera")
	}
	if a.State() != StateIdle {
		t.Errorf("State() = %s, want %s", a.State(), StateIdle)
	}
	if st := a.Session().Snapshot(); st.Mode != session.ModeUpload || st.HasSession() {
		t.Errorf("store after reset = %+v", st)
	}
}

func TestSetMode(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam, Clock: realClock{}, FrameInterval: time.Millisecond})

	if err := a.SetMode("tape"); err == nil {
		t.Error("unknown mode should fail")
	}
	if err := a.SetMode(session.ModeWebcam); err != nil {
		t.Fatalf("SetMode(webcam) error = %v", err)
	}
	if err := a.SetMode(session.ModeUpload); err != nil {
		t.Fatalf("SetMode(upload) error = %v", err)
	}
	if cam.Opens() != 1 || cam.Closes() != 1 {
		t.Errorf("opens/closes = %d/%d, want 1/1", cam.Opens(), cam.Closes())
	}
}

func TestClose_ReleasesEverything(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam, Clock: realClock{}, FrameInterval: time.Millisecond})

	if err := a.EnterWebcam(); err != nil {
		t.Fatalf("EnterWebcam() error = %v", err)
	}

	events, _ := a.Events()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if cam.IsOpen() {
		t.Error("Close should release the camera")
	}
	if err := a.EnterWebcam(); !errors.Is(err, ErrClosed) {
		t.Errorf("EnterWebcam() after Close error = %v, want ErrClosed", err)
	}

	for range events {
	}
}

func TestStatus(t *testing.T) {
	a, _ := newTestApp(t, Config{})
	a.Session().SetSession("img-3")

	st := a.Status()
	if st.State != StateIdle || st.SessionID != "img-3" || st.Mode != session.ModeUpload {
		t.Errorf("Status() = %+v", st)
	}
	if st.Algorithm == "" || st.Params["threshold1"] != 100 {
		t.Errorf("Status() params = %v %v", st.Algorithm, st.Params)
	}
}
