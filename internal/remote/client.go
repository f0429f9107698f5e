// Package remote is the client for the edge-detection service. The service
// owns the algorithms; this package only moves bytes and parameters.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/ayusman/edgelive/internal/params"
)

// HistogramBins is the number of intensity levels in a histogram.
const HistogramBins = 256

// DefaultTimeout bounds a single request to the service.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUpload is returned when the service rejects a still image.
	ErrUpload = errors.New("upload failed")
	// ErrProcessing is returned when a process, live or histogram request fails.
	ErrProcessing = errors.New("processing failed")
	// ErrSessionNotFound is returned when the service no longer knows a session id.
	ErrSessionNotFound = errors.New("session not found")
)

// StatusError carries a non-2xx response from the service.
type StatusError struct {
	Op     string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: service returned %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: service returned %d", e.Op, e.Status)
}

// Service is the request/response contract of the remote processor.
type Service interface {
	Upload(ctx context.Context, filename string, image []byte) (sessionID string, err error)
	Process(ctx context.Context, sessionID string, set params.Set) ([]byte, error)
	ProcessLive(ctx context.Context, frame []byte, set params.Set) ([]byte, error)
	Histogram(ctx context.Context, sessionID string) ([]int, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client
}

// Client talks to the service over HTTP.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the configured service.
func New(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("service url %q must be absolute", config.BaseURL)
	}

	hc := config.HTTPClient
	if hc == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{base: base, http: hc}, nil
}

type uploadResponse struct {
	ImageID string `json:"image_id"`
}

type histogramResponse struct {
	Histogram []float64 `json:"histogram"`
}

// Upload sends a still image and returns the session id assigned to it.
func (c *Client) Upload(ctx context.Context, filename string, image []byte) (string, error) {
	body, contentType, err := multipartBody(filename, image, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	data, err := c.do(ctx, "upload", http.MethodPost, "/upload", body, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	var resp uploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if resp.ImageID == "" {
		return "", fmt.Errorf("%w: response carried no image id", ErrUpload)
	}

	return resp.ImageID, nil
}

// Process runs the algorithm in set against the session's stored image.
func (c *Client) Process(ctx context.Context, sessionID string, set params.Set) ([]byte, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrProcessing)
	}

	fields, err := formFields(set)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	body, contentType, err := multipartBody("", nil, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	data, err := c.do(ctx, "process", http.MethodPost, "/process/"+url.PathEscape(sessionID), body, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return data, nil
}

// ProcessLive runs the algorithm in set against a single encoded frame.
func (c *Client) ProcessLive(ctx context.Context, frame []byte, set params.Set) ([]byte, error) {
	fields, err := formFields(set)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	body, contentType, err := multipartBody("frame.jpg", frame, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	data, err := c.do(ctx, "process_live", http.MethodPost, "/process_live", body, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return data, nil
}

// Histogram fetches the 256-bin intensity histogram of the session's image.
func (c *Client) Histogram(ctx context.Context, sessionID string) ([]int, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrProcessing)
	}

	data, err := c.do(ctx, "histogram", http.MethodGet, "/histogram/"+url.PathEscape(sessionID), nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	var resp histogramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode histogram: %v", ErrProcessing, err)
	}

	if len(resp.Histogram) != HistogramBins {
		return nil, fmt.Errorf("%w: histogram has %d bins, want %d", ErrProcessing, len(resp.Histogram), HistogramBins)
	}

	bins := make([]int, HistogramBins)
	for i, v := range resp.Histogram {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative histogram bin %d", ErrProcessing, i)
		}
		bins[i] = int(v)
	}
	return bins, nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Op: op, Status: resp.StatusCode, Detail: errorDetail(data)}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", ErrSessionNotFound, serr)
		}
		return nil, serr
	}

	return data, nil
}

// formFields builds the algorithm and params form fields for a request.
func formFields(set params.Set) (map[string]string, error) {
	set = set.Clamp()
	opts, err := set.MarshalOptions()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"algorithm": string(set.Algorithm),
		"params":    string(opts),
	}, nil
}

// multipartBody encodes an optional file part and form fields. The file part
// carries a sniffed content type because the service rejects non-image parts.
func multipartBody(filename string, file []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, key := range []string{"algorithm", "params"} {
		if v, ok := fields[key]; ok {
			if err := w.WriteField(key, v); err != nil {
				return nil, "", err
			}
		}
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", http.DetectContentType(file))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorDetail extracts the "detail" message the service puts in error bodies.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
