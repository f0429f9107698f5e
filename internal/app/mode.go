package app

import (
	"fmt"

	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/params"
	"github.com/ayusman/edgelive/internal/session"
)

// State is the mode state machine's current state.
type State string

const (
	StateIdle               State = "idle"
	StateUploadReady        State = "upload_ready"
	StateWebcamInitializing State = "webcam_initializing"
	StateWebcamActive       State = "webcam_active"
	StateWebcamError        State = "webcam_error"
)

// Status is a consistent view of the machine and the current intent.
type Status struct {
	State     State             `json:"state"`
	Notice    string            `json:"notice,omitempty"`
	Mode      session.Mode      `json:"mode"`
	SessionID string            `json:"session_id,omitempty"`
	Algorithm params.Algorithm  `json:"algorithm"`
	Params    map[string]any    `json:"params"`
	Epochs    map[string]uint64 `json:"epochs"`
}

// State returns the current machine state.
func (a *App) State() State {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.state
}

// Notice returns the last user-visible notice, such as a camera failure.
func (a *App) Notice() string {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.notice
}

// Status returns the machine state together with the store snapshot.
func (a *App) Status() Status {
	a.modeMu.Lock()
	state, notice := a.state, a.notice
	a.modeMu.Unlock()

	st := a.store.Snapshot()
	return Status{
		State:     state,
		Notice:    notice,
		Mode:      st.Mode,
		SessionID: st.SessionID,
		Algorithm: st.Params.Algorithm,
		Params:    st.Params.Values(),
		Epochs: map[string]uint64{
			string(buffer.LaneUpload): a.upload.Epoch(),
			string(buffer.LaneWebcam): a.webcam.Epoch(),
		},
	}
}

// SetMode switches between upload and webcam mode.
func (a *App) SetMode(m session.Mode) error {
	switch m {
	case session.ModeWebcam:
		return a.EnterWebcam()
	case session.ModeUpload:
		return a.EnterUpload()
	default:
		return fmt.Errorf("unknown mode %q", m)
	}
}

// EnterWebcam acquires the camera and starts the live loop. If the camera
// cannot be acquired the machine passes through WebcamError, raises a notice
// and settles in UploadReady; the returned error wraps ErrCameraAcquisition.
func (a *App) EnterWebcam() error {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.state == StateWebcamActive {
		return nil
	}

	a.notice = ""
	a.setState(StateWebcamInitializing)

	if err := a.acquireCamera(); err != nil {
		a.log.Error().Err(err).Msg("camera acquisition failed")
		a.notice = fmt.Sprintf("Camera unavailable: %v", err)
		a.setState(StateWebcamError)
		a.emit(Event{Type: EventNotice, Message: a.notice})

		a.store.SetMode(session.ModeUpload)
		a.setState(StateUploadReady)
		return err
	}

	a.store.SetMode(session.ModeWebcam)
	a.startLive()
	a.setState(StateWebcamActive)
	return nil
}

// EnterUpload leaves webcam mode, stopping the live loop and releasing the
// camera. A request still in flight completes but its result is dropped.
func (a *App) EnterUpload() error {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.state != StateWebcamActive {
		return nil
	}

	a.leaveWebcam()
	a.setState(StateUploadReady)
	return nil
}

// Reset drops the session and every buffer from any state and returns to Idle.
func (a *App) Reset() error {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.resetSession(a.state == StateWebcamActive)
	a.notice = ""
	a.setState(StateIdle)
	return nil
}

// leaveWebcam tears down the webcam lane. Callers hold modeMu.
func (a *App) leaveWebcam() {
	a.stopLive()
	if err := a.releaseCamera(); err != nil {
		a.log.Error().Err(err).Msg("error closing camera")
	}
	a.webcam.invalidate()
	a.buffers.ReleaseLane(buffer.LaneWebcam)
	a.store.SetMode(session.ModeUpload)
}

// setState records a transition. Callers hold modeMu.
func (a *App) setState(s State) {
	if a.state == s {
		return
	}
	prev := a.state
	a.state = s

	a.log.Info().Str("from", string(prev)).Str("to", string(s)).Msg("mode transition")
	a.emit(Event{Type: EventState, State: s})
}
