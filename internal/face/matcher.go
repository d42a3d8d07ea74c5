// Matcher capability: extract-and-validate at registration time, verify at
// check-in time. The algorithm itself runs in a sidecar service; this file
// is the HTTP client for it. Every sidecar failure (no face, several faces,
// I/O error) surfaces as an error value, never a panic.
package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoMatch is returned by Verify implementations when the probe matches
// none of the reference images.
var ErrNoMatch = errors.New("face not recognized")

// Matcher is the biometric capability consumed by registration and
// check-in. Implementations must be safe for concurrent use.
type Matcher interface {
	// ExtractAndValidate reports how many faces the image contains.
	// Registration requires exactly one.
	ExtractAndValidate(ctx context.Context, imagePath string) (int, error)
	// Verify reports whether the probe matches any of the reference
	// images.
	Verify(ctx context.Context, referencePaths []string, probePath string) (bool, error)
}

// HTTPMatcher talks to a face matcher sidecar over multipart HTTP.
//
// Endpoints:
//
//	POST {base}/extract  (file)            → {"face_count": n}
//	POST {base}/verify   (reference, probe) → {"verified": bool}
type HTTPMatcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPMatcher constructs an HTTPMatcher with a sane request timeout.
func NewHTTPMatcher(baseURL string) *HTTPMatcher {
	return &HTTPMatcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractAndValidate uploads the image and returns the detected face count.
func (m *HTTPMatcher) ExtractAndValidate(ctx context.Context, imagePath string) (int, error) {
	var out struct {
		FaceCount int `json:"face_count"`
	}
	if err := m.post(ctx, "/extract", map[string]string{"file": imagePath}, &out); err != nil {
		return 0, err
	}
	return out.FaceCount, nil
}

// Verify compares the probe against each reference in order and returns
// true on the first match.
func (m *HTTPMatcher) Verify(ctx context.Context, referencePaths []string, probePath string) (bool, error) {
	if len(referencePaths) == 0 {
		return false, ErrNoReferences
	}
	for _, ref := range referencePaths {
		var out struct {
			Verified bool `json:"verified"`
		}
		err := m.post(ctx, "/verify", map[string]string{
			"reference": ref,
			"probe":     probePath,
		}, &out)
		if err != nil {
			return false, err
		}
		if out.Verified {
			return true, nil
		}
	}
	return false, nil
}

// post uploads the named files as a multipart form and decodes the JSON
// response into out. Non-2xx statuses are errors.
func (m *HTTPMatcher) post(ctx context.Context, path string, files map[string]string, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, p := range files {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		part, err := w.CreateFormFile(field, filepath.Base(p))
		if err != nil {
			f.Close()
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("matcher %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
