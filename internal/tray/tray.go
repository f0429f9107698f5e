// Package tray provides a system tray control surface for EdgeLive.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onMode     func(webcam bool) error
	onReset    func()
	onControls func()
	onQuit     func()
	webcam     bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuMode   *systray.MenuItem
	menuState  *systray.MenuItem
	menuNotice *systray.MenuItem
}

// New creates a new Tray instance in upload mode.
func New() *Tray {
	return &Tray{}
}

// OnModeToggle sets the callback invoked when the user switches between
// upload and webcam mode. A non-nil error leaves the menu in its old mode.
func (t *Tray) OnModeToggle(fn func(webcam bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMode = fn
}

// OnReset sets the callback for the reset menu item.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpenControls sets the callback for the open controls menu item.
func (t *Tray) OnOpenControls(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onControls = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("EdgeLive")
	systray.SetTooltip("EdgeLive edge detection")

	t.mu.Lock()
	t.menuMode = systray.AddMenuItem(modeTitle(t.webcam), "Switch between upload and webcam")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem("State: idle", "Pipeline state")
	t.menuState.Disable()
	t.menuNotice = systray.AddMenuItem("No notices", "Last notice")
	t.menuNotice.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuReset := systray.AddMenuItem("Reset", "Clear image, result and session")
	menuControls := systray.AddMenuItem("Open Controls...", "Open controls in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit EdgeLive")

	go func() {
		for {
			select {
			case <-t.menuMode.ClickedCh:
				t.handleModeToggle()
			case <-menuReset.ClickedCh:
				t.handleReset()
			case <-menuControls.ClickedCh:
				t.handleControls()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func modeTitle(webcam bool) string {
	if webcam {
		return "● Webcam"
	}
	return "○ Upload"
}

// handleModeToggle asks for the other mode and only flips the menu when the
// switch succeeded.
func (t *Tray) handleModeToggle() {
	t.mu.RLock()
	want := !t.webcam
	callback := t.onMode
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			return
		}
	}

	t.SetWebcam(want)
}

func (t *Tray) handleReset() {
	t.mu.RLock()
	callback := t.onReset
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	t.SetWebcam(false)
}

func (t *Tray) handleControls() {
	t.mu.RLock()
	callback := t.onControls
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetWebcam updates the mode shown in the menu.
func (t *Tray) SetWebcam(webcam bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.webcam = webcam
	if t.menuMode != nil {
		t.menuMode.SetTitle(modeTitle(webcam))
	}
}

// SetState updates the state line in the menu.
func (t *Tray) SetState(state string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuState != nil {
		t.menuState.SetTitle("State: " + state)
	}
}

// SetNotice updates the last notice display in the menu.
func (t *Tray) SetNotice(msg string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuNotice != nil {
		if msg == "" {
			t.menuNotice.SetTitle("No notices")
		} else {
			t.menuNotice.SetTitle(msg)
		}
	}
}

// IsWebcam reports the mode currently shown.
func (t *Tray) IsWebcam() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.webcam
}
