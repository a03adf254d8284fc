// Package ollama implements model.Backend against a native Ollama server
// (/api/generate). It covers both backend modes: non-streaming structured
// generation with brace-delimited JSON extraction and schema validation, and
// line-delimited streaming with per-line fault tolerance.
package ollama

import (
	"bufio"
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
	"github.com/slidesmith/slidesmith/model"
)

// Defaults applied by New.
const (
	DefaultHost                 = "http://localhost:11434"
	DefaultModel                = "llama3"
	DefaultTemperature          = 0.15
	DefaultContextWindow        = 8192
	DefaultTimeout              = 120 * time.Second
	DefaultMaxAttempts          = 3
	DefaultRetryInitialInterval = time.Second
	DefaultRetryMaxInterval     = 10 * time.Second
)

// maxLineBytes caps a single streamed line; lines beyond this indicate a
// misbehaving server rather than legitimate output.
const maxLineBytes = 1 << 20

// Options configure the Ollama backend client.
// Fields mirror the subset of generation parameters the engine relies on;
// per-call values win over these defaults.
type Options struct {
	// Host is the base URL of the Ollama server.
	Host string
	// Model is the model name sent with every request.
	Model string
	// Temperature applies when a call does not override it.
	Temperature float64
	// ContextWindow applies when a call does not override it (num_ctx).
	ContextWindow int
	// Timeout bounds a single non-streaming attempt. Streaming calls are
	// bounded only by the caller's context.
	Timeout time.Duration
	// MaxAttempts caps total tries for transport failures on non-streaming
	// calls. Streams are never retried.
	MaxAttempts int
	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps the backoff between attempts.
	RetryMaxInterval time.Duration
	// MaxInflight bounds concurrent backend calls; 0 means unlimited.
	MaxInflight int
	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
	// Logger receives request lifecycle events.
	Logger logging.Logger
}

// Client speaks the native Ollama generate protocol behind the generic
// model.Backend interface.
type Client struct {
	host          string
	model         string
	temperature   float64
	contextWindow int
	timeout       time.Duration
	maxAttempts   int
	retryInitial  time.Duration
	retryMax      time.Duration
	httpClient    *http.Client
	gate          *model.Inflight
	logger        logging.Logger
}

// New creates an Ollama client with the given options.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Host:                 DefaultHost,
		Model:                DefaultModel,
		Temperature:          DefaultTemperature,
		ContextWindow:        DefaultContextWindow,
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
	return &Client{
		host:          strings.TrimRight(opts.Host, "/"),
		model:         opts.Model,
		temperature:   opts.Temperature,
		contextWindow: opts.ContextWindow,
		timeout:       opts.Timeout,
		maxAttempts:   opts.MaxAttempts,
		retryInitial:  opts.RetryInitialInterval,
		retryMax:      opts.RetryMaxInterval,
		httpClient:    opts.HTTPClient,
		gate:          model.NewInflight(opts.MaxInflight),
		logger:        opts.Logger,
	}
}

// generateRequest is the native /api/generate payload.
type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	System  string       `json:"system,omitempty"`
	Stream  bool         `json:"stream"`
	Format  string       `json:"format,omitempty"`
	Options *wireOptions `json:"options,omitempty"`
}

// wireOptions carries sampling parameters under Ollama's native names.
type wireOptions struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	NumCtx        *int     `json:"num_ctx,omitempty"`
	NumPredict    *int     `json:"num_predict,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	MinP          *float64 `json:"min_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	RepeatLastN   *int     `json:"repeat_last_n,omitempty"`
	Seed          *int     `json:"seed,omitempty"`
}

// generateResponse is one native response object; in streaming mode each
// line carries one.
type generateResponse struct {
	Model        string `json:"model"`
	CreatedAt    string `json:"created_at"`
	Response     string `json:"response"`
	Done         bool   `json:"done"`
	Context      []int  `json:"context,omitempty"`
	EvalCount    int    `json:"eval_count,omitempty"`
	EvalDuration int64  `json:"eval_duration,omitempty"` // nanoseconds
}

// GeneratePresentation implements model.Backend. Transport failures are
// retried with exponential backoff up to MaxAttempts; exhaustion surfaces as
// a backend-unavailable transport error. Parse and validation failures are
// returned untouched and never retried.
func (c *Client) GeneratePresentation(ctx context.Context, req model.GenerateRequest) (*core.Presentation, error) {
	opts := req.Options
	opts.JSONMode = true

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, core.NewTransport(core.CodeBackendUnavailable, "backend call cancelled", err)
	}
	defer c.gate.Release()

	start := time.Now()
	raw, err := c.generateWithRetry(ctx, c.buildRequest(req.Prompt, req.System, false, opts))
	if err != nil {
		c.logger.Error("Structured generation failed", "model", c.model, "error", err)
		return nil, err
	}

	pres, err := parsePresentation(raw)
	if err != nil {
		c.logger.Error("Failed to parse structured response", "model", c.model, "error", err)
		return nil, err
	}
	if err := pres.Validate(); err != nil {
		c.logger.Error("Structured response failed validation", "model", c.model, "error", err)
		return nil, err
	}
	c.logger.Info("Structured generation completed", "model", c.model, "duration", time.Since(start), "slides", len(pres.Slides))
	return pres, nil
}

// generateWithRetry performs the non-streaming request, retrying transport
// failures. Envelope decode failures abort immediately as parse errors.
func (c *Client) generateWithRetry(ctx context.Context, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", core.NewParse("failed to encode backend request", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryInitial
	expo.MaxInterval = c.retryMax
	expo.MaxElapsedTime = 0

	attempt := 0
	operation := func() (string, error) {
		attempt++
		raw, err := c.sendGenerate(ctx, body)
		if err != nil {
			c.logger.Warn("Ollama request failed", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		}
		return raw, err
	}

	raw, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxAttempts-1)), ctx))
	if err != nil {
		var typed *core.Error
		if errors.As(err, &typed) {
			return "", typed
		}
		if ctx.Err() != nil {
			return "", core.NewTransport(core.CodeBackendUnavailable, "backend call cancelled", err)
		}
		return "", core.NewTransport(core.CodeBackendUnavailable,
			fmt.Sprintf("backend unavailable after %d attempts", attempt), err)
	}
	return raw, nil
}

// sendGenerate performs one POST /api/generate attempt and returns the
// response text. Connection errors and non-2xx statuses come back as plain
// errors so the retry loop treats them as transient; a malformed envelope is
// permanent.
func (c *Client) sendGenerate(ctx context.Context, body []byte) (string, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(core.NewParse("failed to build backend request", err))
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending request to Ollama", "url", c.host+"/api/generate", "model", c.model)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post /api/generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", backoff.Permanent(core.NewParse("malformed backend response envelope", err))
	}
	return decoded.Response, nil
}

// Stream implements model.Backend. The returned stream is lazy, finite and
// non-restartable: fragments arrive in order, malformed lines are skipped,
// and any failure after the stream opened surfaces as a terminal
// stream-interrupted error. Streams are never retried.
func (c *Client) Stream(ctx context.Context, req model.StreamRequest) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := c.gate.Acquire(ctx); err != nil {
			errCh <- core.NewTransport(core.CodeStreamInterrupted, "stream cancelled before start", err)
			return
		}
		defer c.gate.Release()

		payload := c.buildRequest(req.Prompt, req.System, true, req.Options)
		body, err := json.Marshal(payload)
		if err != nil {
			errCh <- core.NewParse("failed to encode backend request", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
		if err != nil {
			errCh <- core.NewParse("failed to build backend request", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		c.logger.Info("Starting streaming generation", "model", c.model)
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errCh <- core.NewTransport(core.CodeBackendUnavailable, "backend unavailable", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			errCh <- core.NewTransport(core.CodeBackendUnavailable,
				fmt.Sprintf("backend returned status %d", resp.StatusCode), nil)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("Skipping malformed stream line", "error", err)
				continue
			}

			frag := model.Fragment{Text: chunk.Response, Done: chunk.Done}
			if chunk.Done && (chunk.EvalCount > 0 || chunk.EvalDuration > 0) {
				frag.Usage = &model.Usage{
					EvalCount:    chunk.EvalCount,
					EvalDuration: time.Duration(chunk.EvalDuration),
				}
			}

			select {
			case <-ctx.Done():
				errCh <- core.NewTransport(core.CodeStreamInterrupted, "stream cancelled", ctx.Err())
				return
			case out <- frag:
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- core.NewTransport(core.CodeStreamInterrupted, "stream read failed", err)
			return
		}
		// EOF before a done fragment means the connection was cut mid-turn.
		errCh <- core.NewTransport(core.CodeStreamInterrupted, "stream ended before completion", nil)
	}()
	return out, errCh
}

// Info implements model.Backend.
func (c *Client) Info() model.Info {
	return model.Info{Provider: "ollama", Model: c.model}
}

// buildRequest maps generic options onto the native wire format. The
// client-level temperature and context window apply unless the call
// overrides them.
func (c *Client) buildRequest(prompt, system string, stream bool, opts model.GenerateOptions) generateRequest {
	wire := &wireOptions{
		Temperature:   opts.Temperature,
		NumCtx:        opts.ContextWindow,
		NumPredict:    opts.MaxTokens,
		TopK:          opts.TopK,
		TopP:          opts.TopP,
		MinP:          opts.MinP,
		RepeatPenalty: opts.RepeatPenalty,
		RepeatLastN:   opts.RepeatLastN,
		Seed:          opts.Seed,
	}
	if wire.Temperature == nil {
		wire.Temperature = model.Float64(c.temperature)
	}
	if wire.NumCtx == nil {
		wire.NumCtx = model.Int(c.contextWindow)
	}

	req := generateRequest{Model: c.model, Prompt: prompt, System: system, Stream: stream, Options: wire}
	if opts.JSONMode {
		req.Format = "json"
	}
	return req
}

// parsePresentation extracts and decodes the structured payload: slice from
// the first '{' to the last '}', check the required top-level fields, then
// decode into the schema.
func parsePresentation(raw string) (*core.Presentation, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, core.NewParse("no JSON object found in backend response", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, core.NewParse("backend response is not a JSON object", err)
	}
	for _, required := range []string{"title", "slides"} {
		if _, ok := fields[required]; !ok {
			return nil, core.NewParse(fmt.Sprintf("missing required field %q", required), nil)
		}
	}

	var pres core.Presentation
	if err := json.Unmarshal([]byte(payload), &pres); err != nil {
		return nil, core.NewParse("backend response does not match the presentation schema", err)
	}
	return &pres, nil
}

// extractJSON slices the substring from the first '{' to the last '}'. The
// backend may wrap JSON in prose or fenced code blocks; anything outside the
// braces is discarded.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
