// Package api uploads finished session files to a web viewer.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tarkov-map/tracker/pkg/core"
)

const (
	uploadPath = "/api/v1/sessions/add"
	healthPath = "/healthcheck"

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// StatusError is a non-200 reply from the viewer.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
}

// Client talks to the viewer's session API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts int
	backoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with its 30s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry sets how often an upload is tried and the first pause between
// tries, which doubles after each failure.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MetadataFor builds the upload fields for a session lasting durationSec.
func MetadataFor(s core.Session, durationSec float64) core.UploadMetadata {
	return core.UploadMetadata{
		MapID:    s.MapID,
		MapName:  s.MapName,
		Detector: s.Detector,
		Duration: durationSec,
	}
}

// Healthcheck reports whether the viewer answers.
func (c *Client) Healthcheck() error {
	return c.HealthcheckContext(context.Background())
}

func (c *Client) HealthcheckContext(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Code: resp.StatusCode}
	}
	return nil
}

// Upload posts a session file with its metadata.
func (c *Client) Upload(filePath string, meta core.UploadMetadata) error {
	return c.UploadContext(context.Background(), filePath, meta)
}

// UploadContext posts a session file, retrying transport errors and 5xx
// or 429 replies.
func (c *Client) UploadContext(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	backoff := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = c.uploadOnce(ctx, filePath, meta)
		if err == nil || attempt >= c.attempts || !retryable(err) {
			return err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

type formField struct{ name, value string }

func (c *Client) fields(filePath string, meta core.UploadMetadata) []formField {
	return []formField{
		{"secret", c.apiKey},
		{"filename", filepath.Base(filePath)},
		{"mapId", meta.MapID},
		{"mapName", meta.MapName},
		{"detector", meta.Detector},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 6, 64)},
	}
}

func (c *Client) uploadOnce(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, c.fields(filePath, meta), filepath.Base(filePath), file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "upload", Code: resp.StatusCode}
	}
	return nil
}

func writeForm(mw *multipart.Writer, fields []formField, name string, content io.Reader) error {
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return mw.Close()
}
