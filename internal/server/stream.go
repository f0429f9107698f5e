package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/edgelive/internal/app"
	"github.com/ayusman/edgelive/internal/buffer"
)

// DefaultStreamInterval is the MJPEG polling period (~15 FPS).
const DefaultStreamInterval = 66 * time.Millisecond

// StreamHandler serves a lane's published results as a multipart
// x-mixed-replace stream. Each new buffer is written once.
type StreamHandler struct {
	app      *app.App
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler for the given app.
func NewStreamHandler(a *app.App, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{app: a, interval: interval}
}

// ServeHTTP streams frames to connected clients. ?lane=upload selects the
// still-image lane; the default is the webcam lane.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lane := buffer.LaneWebcam
	if r.URL.Query().Get("lane") == string(buffer.LaneUpload) {
		lane = buffer.LaneUpload
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	lastID := ""
	for {
		if buf, data, ok := h.app.Buffers().Read(lane); ok && buf.ID != lastID {
			lastID = buf.ID
			if err := writePart(w, buf.ContentType, data); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, contentType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", contentType, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}
