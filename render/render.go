// Package render delivers finished drafts to the artifact service that
// produces the final presentation file. Renderer failures carry their own
// error type: the artifact surface sits outside the drafting core and its
// errors never masquerade as engine errors.
package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/slidesmith/slidesmith/core"
)

// Codes reported by renderer failures.
const (
	// CodeUnavailable means the service could not be reached within the
	// retry budget.
	CodeUnavailable = "PPTX_SERVICE_UNAVAILABLE"
	// CodeGeneration means the service answered but could not produce the
	// artifact.
	CodeGeneration = "PPTX_GENERATION_ERROR"
)

// Defaults applied to a Render call that does not override them.
const (
	DefaultTemplate = "basic"
	DefaultFilename = "presentation.pptx"
)

// Error is a renderer failure.
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// ArtifactRef identifies a rendered artifact held by the renderer service.
type ArtifactRef struct {
	ID       string `json:"file_id"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

// RenderOptions select the artifact shape for one Render call.
type RenderOptions struct {
	// Template names the renderer-side layout.
	Template string
	// Filename is the artifact's download filename.
	Filename string
}

// Renderer turns a validated presentation into a final artifact.
type Renderer interface {
	// Render submits the presentation and returns a reference to the
	// produced artifact.
	Render(ctx context.Context, pres *core.Presentation, optFns ...func(o *RenderOptions)) (*ArtifactRef, error)

	// Healthy reports whether the renderer service answers its health
	// probe.
	Healthy(ctx context.Context) bool
}

// ScriptedRenderer is a deterministic in-memory Renderer for tests and
// examples. Queued results are consumed in FIFO order; a call with an empty
// queue fails loudly rather than inventing output.
type ScriptedRenderer struct {
	mu      sync.Mutex
	refs    []*ArtifactRef
	errs    []error
	healthy bool

	rendered []*core.Presentation
	options  []RenderOptions
}

// NewScriptedRenderer constructs an empty scripted renderer that reports
// healthy.
func NewScriptedRenderer() *ScriptedRenderer {
	return &ScriptedRenderer{healthy: true}
}

// QueueRef appends a canned render result.
func (r *ScriptedRenderer) QueueRef(ref *ArtifactRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
	r.errs = append(r.errs, nil)
}

// QueueError appends a canned render failure.
func (r *ScriptedRenderer) QueueError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, nil)
	r.errs = append(r.errs, err)
}

// SetHealthy controls the health probe answer.
func (r *ScriptedRenderer) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy = healthy
}

// Rendered returns the presentations submitted so far.
func (r *ScriptedRenderer) Rendered() []*core.Presentation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.Presentation, len(r.rendered))
	copy(out, r.rendered)
	return out
}

// Options returns the per-call options submitted so far.
func (r *ScriptedRenderer) Options() []RenderOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RenderOptions, len(r.options))
	copy(out, r.options)
	return out
}

// Render implements Renderer.
func (r *ScriptedRenderer) Render(ctx context.Context, pres *core.Presentation, optFns ...func(o *RenderOptions)) (*ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := RenderOptions{Template: DefaultTemplate, Filename: DefaultFilename}
	for _, fn := range optFns {
		fn(&opts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, pres.Clone())
	r.options = append(r.options, opts)

	if len(r.refs) == 0 {
		return nil, fmt.Errorf("scripted renderer: no queued result")
	}
	ref, err := r.refs[0], r.errs[0]
	r.refs = r.refs[1:]
	r.errs = r.errs[1:]
	if err != nil {
		return nil, err
	}
	out := *ref
	return &out, nil
}

// Healthy implements Renderer.
func (r *ScriptedRenderer) Healthy(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthy
}
