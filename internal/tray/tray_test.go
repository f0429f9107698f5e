package tray

import (
	"errors"
	"testing"
)

func TestTray_ModeToggle(t *testing.T) {
	tr := New()

	var asked []bool
	tr.OnModeToggle(func(webcam bool) error {
		asked = append(asked, webcam)
		return nil
	})

	tr.handleModeToggle()
	if !tr.IsWebcam() {
		t.Error("toggle from upload should enter webcam")
	}

	tr.handleModeToggle()
	if tr.IsWebcam() {
		t.Error("second toggle should return to upload")
	}

	if len(asked) != 2 || !asked[0] || asked[1] {
		t.Errorf("callback saw %v, want [true false]", asked)
	}
}

func TestTray_ModeToggleFailure(t *testing.T) {
	tr := New()
	tr.OnModeToggle(func(webcam bool) error {
		return errors.New("camera unavailable")
	})

	tr.handleModeToggle()

	if tr.IsWebcam() {
		t.Error("failed switch must leave the menu in upload mode")
	}
}

func TestTray_Reset(t *testing.T) {
	tr := New()
	tr.SetWebcam(true)

	called := false
	tr.OnReset(func() { called = true })
	tr.handleReset()

	if !called {
		t.Error("reset callback not invoked")
	}
	if tr.IsWebcam() {
		t.Error("reset should show upload mode")
	}
}

func TestTray_UpdatesWithoutMenu(t *testing.T) {
	tr := New()

	// Before Run the menu items do not exist yet.
	tr.SetState("webcam_active")
	tr.SetNotice("Camera unavailable")
	tr.SetNotice("")

	opened := false
	tr.OnOpenControls(func() { opened = true })
	tr.handleControls()
	if !opened {
		t.Error("controls callback not invoked")
	}
}
