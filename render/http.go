package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/logging"
)

// Defaults applied by NewHTTPRenderer.
const (
	DefaultHost                 = "http://pptx-generator:8001"
	DefaultTimeout              = 30 * time.Second
	DefaultMaxAttempts          = 3
	DefaultRetryInitialInterval = time.Second
	DefaultRetryMaxInterval     = 5 * time.Second
)

// Options configure the HTTP renderer client.
type Options struct {
	// Host is the base URL of the renderer service.
	Host string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxAttempts caps total tries for transport and status failures.
	MaxAttempts int
	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps the backoff between attempts.
	RetryMaxInterval time.Duration
	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
	// Logger receives request lifecycle events.
	Logger logging.Logger
}

// HTTPRenderer speaks the renderer service's generate protocol.
type HTTPRenderer struct {
	host         string
	timeout      time.Duration
	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration
	httpClient   *http.Client
	logger       logging.Logger
}

// NewHTTPRenderer creates a renderer client with the given options.
func NewHTTPRenderer(optFns ...func(o *Options)) *HTTPRenderer {
	opts := Options{
		Host:                 DefaultHost,
		Timeout:              DefaultTimeout,
		MaxAttempts:          DefaultMaxAttempts,
		RetryInitialInterval: DefaultRetryInitialInterval,
		RetryMaxInterval:     DefaultRetryMaxInterval,
		HTTPClient:           &http.Client{},
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &HTTPRenderer{
		host:         strings.TrimRight(opts.Host, "/"),
		timeout:      opts.Timeout,
		maxAttempts:  opts.MaxAttempts,
		retryInitial: opts.RetryInitialInterval,
		retryMax:     opts.RetryMaxInterval,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
	}
}

// renderRequest is the native generate payload.
type renderRequest struct {
	Content  *core.Presentation `json:"content"`
	Template string             `json:"template"`
	Filename string             `json:"filename"`
}

// renderResponse is the native generate answer.
type renderResponse struct {
	Success  bool   `json:"success"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// Render implements Renderer. Transport and status failures are retried with
// exponential backoff up to MaxAttempts; exhaustion surfaces as an
// unavailable error. A reply the service itself marks as failed is a
// generation error and is not retried.
func (r *HTTPRenderer) Render(ctx context.Context, pres *core.Presentation, optFns ...func(o *RenderOptions)) (*ArtifactRef, error) {
	opts := RenderOptions{Template: DefaultTemplate, Filename: DefaultFilename}
	for _, fn := range optFns {
		fn(&opts)
	}

	body, err := json.Marshal(renderRequest{Content: pres, Template: opts.Template, Filename: opts.Filename})
	if err != nil {
		return nil, newError(CodeGeneration, "failed to encode render request", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.retryInitial
	expo.MaxInterval = r.retryMax
	expo.MaxElapsedTime = 0

	r.logger.Info("Rendering presentation", "slides", len(pres.Slides), "template", opts.Template)

	attempt := 0
	operation := func() (*renderResponse, error) {
		attempt++
		decoded, err := r.send(ctx, body)
		if err != nil {
			r.logger.Warn("Renderer request failed", "attempt", attempt, "max_attempts", r.maxAttempts, "error", err)
		}
		return decoded, err
	}

	decoded, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.maxAttempts-1)), ctx))
	if err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		if ctx.Err() != nil {
			return nil, newError(CodeUnavailable, "render cancelled", err)
		}
		return nil, newError(CodeUnavailable, fmt.Sprintf("renderer unavailable after %d attempts", attempt), err)
	}

	if !decoded.Success {
		return nil, newError(CodeGeneration, decoded.Message, nil)
	}

	r.logger.Info("Presentation rendered", "file_id", decoded.FileID, "filename", decoded.Filename)
	return &ArtifactRef{ID: decoded.FileID, Filename: decoded.Filename, Message: decoded.Message}, nil
}

// send performs one POST /generate attempt. Connection errors and non-2xx
// statuses come back as plain errors so the retry loop treats them as
// transient; a malformed answer is permanent.
func (r *HTTPRenderer) send(ctx context.Context, body []byte) (*renderResponse, error) {
	attemptCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, r.host+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(newError(CodeGeneration, "failed to build render request", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post /generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("renderer returned status %d", resp.StatusCode)
	}

	var decoded renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, backoff.Permanent(newError(CodeGeneration, "malformed renderer response", err))
	}
	return &decoded, nil
}

// Healthy implements Renderer via GET /health.
func (r *HTTPRenderer) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.host+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("Renderer health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode == http.StatusOK
}
