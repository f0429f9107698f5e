package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/app"
	"github.com/ayusman/edgelive/internal/capture"
	"github.com/ayusman/edgelive/internal/remote/remotetest"
)

func get(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	rec := get(s, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("status field = %v, want ok", response["status"])
	}
	if _, ok := response["uptime"]; !ok {
		t.Error("missing uptime")
	}
	if _, ok := response["state"]; ok {
		t.Error("state reported without an app")
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		if rec := get(s, method, "/api/health"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /api/health: status = %d, want %d", method, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestServer_HealthReportsState(t *testing.T) {
	service := remotetest.NewServer()
	defer service.Close()

	a, err := app.New(app.Config{
		Service: service.Client(),
		Camera:  capture.NewMockCamera(nil, false),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer a.Close()

	rec := get(New(Config{App: a}), http.MethodGet, "/api/health")

	var response map[string]any
	json.NewDecoder(rec.Body).Decode(&response)
	if response["state"] != string(app.StateIdle) {
		t.Errorf("state = %v, want %s", response["state"], app.StateIdle)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := "<html><body>EdgeLive</body></html>"
	script := "connect();"
	os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0644)
	os.WriteFile(filepath.Join(dir, "app.js"), []byte(script), 0644)

	s := New(Config{StaticDir: dir})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/", wantCode: http.StatusOK, wantBody: index},
		{path: "/app.js", wantCode: http.StatusOK, wantBody: script},
		{path: "/missing.html", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(s, http.MethodGet, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/", "/api/nonexistent", "/api/state", "/api/requests", "/api/stream", "/api/events"} {
		if rec := get(s, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s without app, store or static dir: status %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
}

func TestServer_NewHTTPServer(t *testing.T) {
	s := New(Config{})
	hs := s.NewHTTPServer("127.0.0.1:0")

	if hs.Addr != "127.0.0.1:0" {
		t.Errorf("Addr = %s", hs.Addr)
	}
	if hs.Handler != http.Handler(s) {
		t.Error("handler should be the server")
	}
	if hs.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout should be set")
	}
}
