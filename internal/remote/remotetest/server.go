// Package remotetest provides an in-process stand-in for the edge-detection
// service, for tests that exercise the real HTTP client.
package remotetest

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/edgelive/internal/params"
	"github.com/ayusman/edgelive/internal/remote"
)

// Server answers /upload, /process/{id}, /process_live and /histogram/{id}.
// Results are small PNGs whose gray level is threshold1 modulo 256, so tests
// can tell which parameters produced an image.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	images    map[string][]byte
	failing   bool
	processed int
	live      int
	last      params.Set
}

// NewServer starts a Server. Callers must Close it.
func NewServer() *Server {
	s := &Server{images: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/process/", s.handleProcess)
	mux.HandleFunc("/process_live", s.handleProcessLive)
	mux.HandleFunc("/histogram/", s.handleHistogram)

	s.Server = httptest.NewServer(mux)
	return s
}

// Client returns a remote.Client pointed at the server.
func (s *Server) Client() *remote.Client {
	c, err := remote.New(remote.Config{BaseURL: s.URL, HTTPClient: s.Server.Client()})
	if err != nil {
		panic(err)
	}
	return c
}

// SetFailing makes processing requests return 500 until called with false.
func (s *Server) SetFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

// Processed returns the number of successful /process calls.
func (s *Server) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// LiveProcessed returns the number of successful /process_live calls.
func (s *Server) LiveProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// LastParams returns the parameters of the most recent processing call.
func (s *Server) LastParams() params.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Gray returns the gray level Server renders for threshold1.
func Gray(threshold1 int) uint8 {
	return uint8(threshold1 % 256)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		detail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		detail(w, http.StatusBadRequest, "File must be an image")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		detail(w, http.StatusBadRequest, "read failed")
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.images[id] = data
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"image_id": id})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/process/")

	s.mu.Lock()
	_, ok := s.images[id]
	s.mu.Unlock()
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}

	s.process(w, r, false)
}

func (s *Server) handleProcessLive(w http.ResponseWriter, r *http.Request) {
	if _, _, err := r.FormFile("file"); err != nil {
		detail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	s.process(w, r, true)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, live bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	algorithm, err := params.ParseAlgorithm(r.FormValue("algorithm"))
	if err != nil {
		detail(w, http.StatusBadRequest, err.Error())
		return
	}
	set, err := params.UnmarshalOptions(params.Default(), []byte(r.FormValue("params")))
	if err != nil {
		set = params.Default()
	}
	set = set.WithAlgorithm(algorithm)

	s.mu.Lock()
	if s.failing {
		s.mu.Unlock()
		detail(w, http.StatusInternalServerError, "Processing failed")
		return
	}
	if live {
		s.live++
	} else {
		s.processed++
	}
	s.last = set
	s.mu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	w.Write(grayPNG(Gray(set.Threshold1)))
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/histogram/")

	s.mu.Lock()
	data, ok := s.images[id]
	s.mu.Unlock()
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}

	hist := make([]float64, remote.HistogramBins)
	hist[0] = float64(len(data))
	hist[255] = 1

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]float64{"histogram": hist})
}

func detail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

func grayPNG(level uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = level
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
