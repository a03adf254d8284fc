package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slidesmith/slidesmith/core"
)

// GenerateOptions is the sampling parameter bag shared by both backend
// modes. Nil fields are omitted from the wire request so the backend applies
// its own defaults.
type GenerateOptions struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	MinP          *float64 `json:"min_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	RepeatLastN   *int     `json:"repeat_last_n,omitempty"`
	ContextWindow *int     `json:"context_window,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Seed          *int     `json:"seed,omitempty"`
	// JSONMode forces the backend to emit syntactically valid JSON.
	JSONMode bool `json:"-"`
}

// Float64 returns a pointer to v for optional option fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v for optional option fields.
func Int(v int) *int { return &v }

// GenerateRequest captures one structured-mode invocation.
type GenerateRequest struct {
	// Prompt is the fully composed prompt including any embedded history.
	Prompt string `json:"prompt"`
	// System is an optional system instruction.
	System string `json:"system,omitempty"`
	// Options tune sampling for this call.
	Options GenerateOptions `json:"options"`
}

// StreamRequest captures one streaming-mode invocation.
type StreamRequest struct {
	// Prompt is the fully composed prompt including any embedded history.
	Prompt string `json:"prompt"`
	// System is an optional system instruction.
	System string `json:"system,omitempty"`
	// Options tune sampling for this call.
	Options GenerateOptions `json:"options"`
}

// Usage carries backend-reported generation counters, delivered on the final
// fragment of a stream when the backend provides them.
type Usage struct {
	EvalCount    int           `json:"eval_count"`
	EvalDuration time.Duration `json:"eval_duration"`
}

// Fragment is one chunk of streamed model output.
type Fragment struct {
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Usage *Usage `json:"usage,omitempty"`
}

// Info contains metadata about a backend implementation.
type Info struct {
	Provider string `json:"provider"` // "ollama", "scripted", etc.
	Model    string `json:"model"`
}

// Backend is the generation interface consumed by the coordinator and the
// assembler.
//
// Stream returns a lazy, finite, non-restartable fragment sequence: the
// fragment channel closes after the final fragment, the error channel
// (capacity 1) delivers at most one terminal error and then closes, and a
// terminal error means the fragment channel will produce nothing further.
// Cancelling ctx tears the stream down.
type Backend interface {
	// GeneratePresentation issues a non-streaming structured-mode call and
	// returns a validated presentation. Transport failures are retried with
	// bounded exponential backoff; parse and validation failures are
	// returned to the caller untouched.
	GeneratePresentation(ctx context.Context, req GenerateRequest) (*core.Presentation, error)

	// Stream issues a streaming-mode call. A partially delivered stream is
	// never retried.
	Stream(ctx context.Context, req StreamRequest) (<-chan Fragment, <-chan error)

	// Info returns information about the backend implementation.
	Info() Info
}

// StreamScript is one pre-programmed stream for the ScriptedBackend: its
// fragments are emitted in order, then Err (if set) is delivered as the
// terminal error.
type StreamScript struct {
	Fragments []Fragment
	Err       error
}

// ScriptedBackend is a deterministic in-memory Backend for tests and
// examples. Queued scripts and presentations are consumed in FIFO order, one
// per call; a call with an empty queue fails loudly rather than inventing
// output.
type ScriptedBackend struct {
	mu            sync.Mutex
	streams       []StreamScript
	presentations []*core.Presentation
	generateErrs  []error

	streamRequests   []StreamRequest
	generateRequests []GenerateRequest
}

// NewScriptedBackend constructs an empty scripted backend.
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{}
}

// QueueStream appends a scripted stream.
func (b *ScriptedBackend) QueueStream(script StreamScript) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = append(b.streams, script)
}

// QueueText splits text into word-sized fragments followed by a done
// fragment, approximating real token streaming.
func (b *ScriptedBackend) QueueText(parts ...string) {
	fragments := make([]Fragment, 0, len(parts)+1)
	for _, p := range parts {
		fragments = append(fragments, Fragment{Text: p})
	}
	fragments = append(fragments, Fragment{Done: true, Usage: &Usage{EvalCount: len(parts)}})
	b.QueueStream(StreamScript{Fragments: fragments})
}

// QueuePresentation appends a canned structured-mode result.
func (b *ScriptedBackend) QueuePresentation(p *core.Presentation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentations = append(b.presentations, p)
	b.generateErrs = append(b.generateErrs, nil)
}

// QueueGenerateError appends a structured-mode failure.
func (b *ScriptedBackend) QueueGenerateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentations = append(b.presentations, nil)
	b.generateErrs = append(b.generateErrs, err)
}

// StreamRequests returns the recorded streaming-mode requests.
func (b *ScriptedBackend) StreamRequests() []StreamRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	reqs := make([]StreamRequest, len(b.streamRequests))
	copy(reqs, b.streamRequests)
	return reqs
}

// GenerateRequests returns the recorded structured-mode requests.
func (b *ScriptedBackend) GenerateRequests() []GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	reqs := make([]GenerateRequest, len(b.generateRequests))
	copy(reqs, b.generateRequests)
	return reqs
}

// GeneratePresentation implements Backend.
func (b *ScriptedBackend) GeneratePresentation(ctx context.Context, req GenerateRequest) (*core.Presentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generateRequests = append(b.generateRequests, req)
	if len(b.presentations) == 0 {
		return nil, fmt.Errorf("scripted backend: no queued presentation")
	}
	p, err := b.presentations[0], b.generateErrs[0]
	b.presentations = b.presentations[1:]
	b.generateErrs = b.generateErrs[1:]
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Stream implements Backend; emits the next scripted stream.
func (b *ScriptedBackend) Stream(ctx context.Context, req StreamRequest) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 16)
	errCh := make(chan error, 1)

	b.mu.Lock()
	b.streamRequests = append(b.streamRequests, req)
	var script StreamScript
	if len(b.streams) > 0 {
		script = b.streams[0]
		b.streams = b.streams[1:]
	} else {
		script = StreamScript{Err: fmt.Errorf("scripted backend: no queued stream")}
	}
	b.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)
		for _, f := range script.Fragments {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- f:
			}
		}
		if script.Err != nil {
			errCh <- script.Err
		}
	}()
	return out, errCh
}

// Info implements Backend.
func (b *ScriptedBackend) Info() Info { return Info{Provider: "scripted", Model: "scripted"} }
