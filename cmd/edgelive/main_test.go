package main

import (
	"testing"
	"time"
)

func TestParseOptions_Defaults(t *testing.T) {
	t.Setenv("EDGELIVE_WEB", "/srv/web")

	o, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}

	if o.addr != "127.0.0.1:8080" {
		t.Errorf("addr = %s", o.addr)
	}
	if o.serviceURL != "http://localhost:8000" {
		t.Errorf("service = %s", o.serviceURL)
	}
	if o.dbPath != "" {
		t.Errorf("db = %q, want in-memory default", o.dbPath)
	}
	if o.webDir != "/srv/web" {
		t.Errorf("web = %s", o.webDir)
	}
}

func TestParseOptions_EnvAndFlags(t *testing.T) {
	t.Setenv("EDGELIVE_SERVICE_URL", "http://detector:9000")
	t.Setenv("EDGELIVE_DEBOUNCE", "150ms")
	t.Setenv("EDGELIVE_CAMERA", "2")
	t.Setenv("EDGELIVE_TRAY", "true")
	t.Setenv("EDGELIVE_MOTION", "not-a-number")
	t.Setenv("EDGELIVE_WEB", "/srv/web")

	o, err := parseOptions([]string{"-camera", "1", "-log-json"})
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}

	if o.serviceURL != "http://detector:9000" {
		t.Errorf("service = %s", o.serviceURL)
	}
	if o.debounce != 150*time.Millisecond {
		t.Errorf("debounce = %v", o.debounce)
	}
	if o.camera != 1 {
		t.Errorf("camera = %d, flag should override env", o.camera)
	}
	if !o.tray || !o.logJSON {
		t.Errorf("tray = %v, logJSON = %v", o.tray, o.logJSON)
	}
	if o.motion != 0 {
		t.Errorf("motion = %v, unparseable env should keep the default", o.motion)
	}
}

func TestParseOptions_BadFlag(t *testing.T) {
	if _, err := parseOptions([]string{"-no-such-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
