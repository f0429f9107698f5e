package app

import (
	"errors"
	"fmt"
)

// ErrCameraAcquisition wraps any failure to open the camera.
var ErrCameraAcquisition = errors.New("camera acquisition failed")

// acquireCamera opens the camera. On failure the device is closed again so no
// half-acquired handle survives. Only the mode machine calls it.
func (a *App) acquireCamera() error {
	if a.camera.IsOpen() {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		a.camera.Close()
		return fmt.Errorf("%w: %w", ErrCameraAcquisition, err)
	}

	a.log.Info().Msg("camera acquired")
	return nil
}

// releaseCamera closes the camera. It is safe to call when already released.
func (a *App) releaseCamera() error {
	wasOpen := a.camera.IsOpen()
	if err := a.camera.Close(); err != nil {
		return fmt.Errorf("release camera: %w", err)
	}
	if wasOpen {
		a.log.Info().Msg("camera released")
	}
	return nil
}

// resetSession clears the session and every lane buffer. In webcam mode it
// also releases the camera and returns the store to upload mode. Callers hold
// modeMu.
func (a *App) resetSession(webcam bool) {
	if webcam {
		a.leaveWebcam()
	}

	prev := a.store.Snapshot().SessionID
	a.store.Reset()

	a.debounce.Cancel()
	a.upload.invalidate()
	a.webcam.invalidate()
	a.buffers.ReleaseAll()
	a.clearHistogram()
	a.clearSessionRecord(prev)

	a.log.Info().Str("session", prev).Msg("session reset")
}
