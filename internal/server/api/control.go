package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/app"
	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/imaging"
	"github.com/ayusman/edgelive/internal/params"
	"github.com/ayusman/edgelive/internal/session"
)

// DefaultMaxUploadBytes bounds the size of an uploaded still.
const DefaultMaxUploadBytes = 32 << 20

// ControlHandler exposes the pipeline: state, upload, parameters, mode,
// reset, results and histogram.
type ControlHandler struct {
	app       *app.App
	log       zerolog.Logger
	maxUpload int64
}

// NewControlHandler creates a new ControlHandler for the given app.
func NewControlHandler(a *app.App, log zerolog.Logger, maxUpload int64) *ControlHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &ControlHandler{
		app:       a,
		log:       log.With().Str("component", "api").Logger(),
		maxUpload: maxUpload,
	}
}

// ServeHTTP routes requests under /api/.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/")

	switch {
	case path == "state":
		h.only(w, r, http.MethodGet, h.state)
	case path == "upload":
		h.only(w, r, http.MethodPost, h.upload)
	case path == "params":
		h.only(w, r, http.MethodPut, h.setParams)
	case path == "algorithm":
		h.only(w, r, http.MethodPut, h.setAlgorithm)
	case path == "mode":
		h.only(w, r, http.MethodPost, h.setMode)
	case path == "reset":
		h.only(w, r, http.MethodPost, h.reset)
	case path == "histogram":
		h.only(w, r, http.MethodGet, h.histogram)
	case strings.HasPrefix(path, "result/"):
		lane := buffer.Lane(strings.TrimPrefix(path, "result/"))
		h.only(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.result(w, r, lane)
		})
	default:
		http.NotFound(w, r)
	}
}

func (h *ControlHandler) only(w http.ResponseWriter, r *http.Request, method string, fn http.HandlerFunc) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

// state handles GET /api/state.
func (h *ControlHandler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Status())
}

// upload handles POST /api/upload with a multipart "file" field.
func (h *ControlHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	res, err := h.app.Upload(r.Context(), header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrNotImage):
			writeError(w, http.StatusUnsupportedMediaType, "File must be an image")
		case errors.Is(err, app.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "Shutting down")
		default:
			h.log.Warn().Err(err).Msg("upload failed")
			writeError(w, http.StatusBadGateway, "Upload failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

type paramsRequest struct {
	Algorithm string `json:"algorithm"`
}

// setParams handles PUT /api/params. The body is a JSON object of options,
// optionally with "algorithm"; absent keys keep their current values.
func (h *ControlHandler) setParams(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	var req paramsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if _, err := params.UnmarshalOptions(params.Default(), body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters")
		return
	}

	var algorithm params.Algorithm
	if req.Algorithm != "" {
		algorithm, err = params.ParseAlgorithm(req.Algorithm)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	h.app.Session().UpdateParams(func(cur params.Set) params.Set {
		next, _ := params.UnmarshalOptions(cur, body)
		if algorithm != "" {
			next = next.WithAlgorithm(algorithm)
		}
		return next
	})

	writeJSON(w, http.StatusOK, h.app.Status())
}

// setAlgorithm handles PUT /api/algorithm.
func (h *ControlHandler) setAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	algorithm, err := params.ParseAlgorithm(req.Algorithm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.app.Session().SetAlgorithm(algorithm)
	writeJSON(w, http.StatusOK, h.app.Status())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// setMode handles POST /api/mode.
func (h *ControlHandler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	mode := session.Mode(req.Mode)
	if mode != session.ModeUpload && mode != session.ModeWebcam {
		writeError(w, http.StatusBadRequest, "Invalid mode")
		return
	}

	if err := h.app.SetMode(mode); err != nil {
		switch {
		case errors.Is(err, app.ErrCameraAcquisition):
			writeJSON(w, http.StatusConflict, h.app.Status())
		case errors.Is(err, app.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "Shutting down")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to switch mode")
		}
		return
	}

	writeJSON(w, http.StatusOK, h.app.Status())
}

// reset handles POST /api/reset.
func (h *ControlHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Reset(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

// histogram handles GET /api/histogram.
func (h *ControlHandler) histogram(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.app.Histogram()
	if !ok {
		writeError(w, http.StatusNotFound, "No histogram")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// result handles GET /api/result/{lane}. With ?download=1 the image is sent
// as an attachment named after the current algorithm.
func (h *ControlHandler) result(w http.ResponseWriter, r *http.Request, lane buffer.Lane) {
	if lane != buffer.LaneUpload && lane != buffer.LaneWebcam {
		writeError(w, http.StatusBadRequest, "Invalid lane")
		return
	}

	buf, data, ok := h.app.Buffers().Read(lane)
	if !ok {
		writeError(w, http.StatusNotFound, "No result")
		return
	}

	w.Header().Set("Content-Type", buf.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Buffer-Id", buf.ID)
	w.Header().Set("X-Epoch", strconv.FormatUint(buf.Epoch, 10))

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		name := DownloadName(h.app.Session().Snapshot().Params.Algorithm)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}

	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DownloadName is the file name offered for a downloaded result.
func DownloadName(a params.Algorithm) string {
	return fmt.Sprintf("edge_detected_%s.png", a)
}
