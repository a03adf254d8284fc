// Package slidesmith turns a guided conversation into a finished
// presentation draft and renders it into a downloadable deck.
//
// Typical usage:
//
//  1. Create an Engine with New(), overriding the backend, session store,
//     template registry or renderer as needed.
//  2. Start a guided session with StartSession(); the transcript opens with
//     the template greeting.
//  3. Exchange messages with SendMessage() or SendMessageSync() until the
//     assistant signals it has gathered enough information.
//  4. Build the draft with BuildDraft(), then render it with Finalize().
//
// GenerateOutline() produces a one-shot outline without a session.
package slidesmith

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slidesmith/slidesmith/chat"
	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/draft"
	"github.com/slidesmith/slidesmith/logging"
	"github.com/slidesmith/slidesmith/model"
	"github.com/slidesmith/slidesmith/model/ollama"
	"github.com/slidesmith/slidesmith/prompt"
	"github.com/slidesmith/slidesmith/render"
	"github.com/slidesmith/slidesmith/session"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// SessionTTL is the idle lifetime applied by the default in-memory
	// session store. Ignored when Store is set.
	SessionTTL time.Duration

	// Temperature overrides the backend sampling temperature for
	// conversational turns. Nil keeps the backend default.
	Temperature *float64

	// DraftTemperature is the sampling temperature for draft assembly and
	// one-shot outlines. Low values keep the structured output stable.
	DraftTemperature float64

	// EventBufferSize sets channel buffering for streamed turn events.
	EventBufferSize int

	// Store keeps sessions and transcripts. Defaults to the in-memory
	// store.
	Store core.SessionStore

	// Backend generates replies and outlines. Defaults to an Ollama client
	// on its local address.
	Backend model.Backend

	// Templates is the presentation template registry. Defaults to the
	// built-in templates.
	Templates *prompt.Registry

	// Renderer turns drafts into downloadable artifacts. Defaults to the
	// HTTP renderer on its local address.
	Renderer render.Renderer

	// Logger receives engine lifecycle logs. Defaults to no logging.
	Logger logging.Logger
}

// Engine wires the session store, the generation backend, the template
// registry and the renderer into one drafting workflow.
type Engine struct {
	store     core.SessionStore
	backend   model.Backend
	templates *prompt.Registry
	renderer  render.Renderer

	chat      *chat.Coordinator
	assembler *draft.Assembler

	draftTemperature float64
	logger           logging.Logger
}

// New creates an Engine. Without overrides it keeps sessions in memory,
// generates through an Ollama instance on localhost and renders through the
// PPTX service on its default address.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		SessionTTL:       session.DefaultTTL,
		DraftTemperature: draft.DefaultTemperature,
		EventBufferSize:  chat.DefaultEventBufferSize,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Templates == nil {
		opts.Templates = prompt.NewRegistry()
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore(func(o *session.Options) {
			if opts.SessionTTL > 0 {
				o.TTL = opts.SessionTTL
			}
			o.Logger = opts.Logger
		})
	}
	if opts.Backend == nil {
		opts.Backend = ollama.New(func(o *ollama.Options) {
			o.Logger = opts.Logger
		})
	}
	if opts.Renderer == nil {
		opts.Renderer = render.NewHTTPRenderer(func(o *render.Options) {
			o.Logger = opts.Logger
		})
	}

	coordinator := chat.NewCoordinator(opts.Store, opts.Backend, opts.Templates, func(o *chat.Options) {
		o.Temperature = opts.Temperature
		o.EventBufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})
	assembler := draft.NewAssembler(opts.Store, opts.Backend, opts.Templates, func(o *draft.Options) {
		o.Temperature = opts.DraftTemperature
		o.Logger = opts.Logger
	})

	return &Engine{
		store:            opts.Store,
		backend:          opts.Backend,
		templates:        opts.Templates,
		renderer:         opts.Renderer,
		chat:             coordinator,
		assembler:        assembler,
		draftTemperature: opts.DraftTemperature,
		logger:           opts.Logger,
	}
}

// StartSession creates a guided session for the given template key and
// seeds the transcript with the template greeting.
func (e *Engine) StartSession(template string) (*core.Session, error) {
	tmpl, err := e.templates.Get(template)
	if err != nil {
		return nil, err
	}
	if !tmpl.Guided {
		return nil, core.NewState(core.CodeGuidedModeNotSupported,
			fmt.Sprintf("template %q does not support guided sessions", template))
	}

	sess, err := e.store.Create(template)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	greeting := tmpl.Greeting
	if greeting == "" {
		greeting = prompt.DefaultGreeting
	}
	if _, err := e.store.AddMessage(sess.ID, core.RoleAssistant, greeting); err != nil {
		return nil, fmt.Errorf("failed to seed greeting: %w", err)
	}

	e.logger.Info("Started chat session", "session_id", sess.ID, "template", template)

	return e.store.Get(sess.ID)
}

// SendMessage runs one conversational turn, streaming the assistant reply
// as it is generated. It returns the turn ID together with the event stream
// and an error channel that delivers at most one terminal error before
// closing. The exchange is committed to the transcript only when the stream
// completes.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text string) (string, <-chan chat.Event, <-chan error, error) {
	return e.chat.StreamMessage(ctx, sessionID, text)
}

// TurnResult is the outcome of a fully drained conversational turn.
type TurnResult struct {
	// Reply is the cleaned assistant reply as committed to the transcript.
	Reply string
	// ReadyForDraft reports whether the assistant signalled it has enough
	// information to draft.
	ReadyForDraft bool
}

// SendMessageSync runs one conversational turn and blocks until the reply
// is complete. It is a convenience wrapper around SendMessage for callers
// that do not need streaming.
func (e *Engine) SendMessageSync(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	_, events, errs, err := e.chat.StreamMessage(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	var reply strings.Builder
	result := &TurnResult{}
	for event := range events {
		reply.WriteString(event.Content)
		if event.Done {
			result.ReadyForDraft = event.ReadyForDraft
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}

	result.Reply = strings.TrimSpace(reply.String())
	return result, nil
}

// BuildDraft assembles a validated presentation draft from the session's
// conversation and attaches it to the session.
func (e *Engine) BuildDraft(ctx context.Context, sessionID string) (*core.Presentation, error) {
	return e.assembler.Build(ctx, sessionID)
}

// Finalize renders the session's draft into a downloadable artifact. The
// session must hold a draft built by BuildDraft.
func (e *Engine) Finalize(ctx context.Context, sessionID string, optFns ...func(o *render.RenderOptions)) (*render.ArtifactRef, error) {
	sess, err := e.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess.Draft == nil {
		return nil, core.NewState(core.CodeNoDraft, "no draft available, create a draft first")
	}

	ref, err := e.renderer.Render(ctx, sess.Draft, optFns...)
	if err != nil {
		e.logger.Error("Finalize failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	e.logger.Info("Finalized presentation", "session_id", sessionID, "file_id", ref.ID)
	return ref, nil
}

// OutlineOptions holds configuration overrides passed to GenerateOutline().
type OutlineOptions struct {
	// Template selects the outline scaffold and system prompt. Unknown keys
	// fall back to the built-in scaffold.
	Template string
	// Language is the output language code ("en", "nl", "de", "fr").
	Language string
	// Slides is the requested slide count, clamped to the supported range.
	Slides int
	// Temperature overrides the engine draft temperature.
	Temperature *float64
	// ContextWindow overrides the backend context window.
	ContextWindow *int
}

// GenerateOutline produces a presentation outline for the topic in a single
// structured-mode call, without a session.
func (e *Engine) GenerateOutline(ctx context.Context, topic string, optFns ...func(o *OutlineOptions)) (*core.Presentation, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, core.NewValidation("topic", "must not be empty")
	}

	opts := OutlineOptions{
		Template: "general",
		Language: "en",
		Slides:   prompt.DefaultOutlineSlides,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	// Outlines have no session to protect, so an unknown template key
	// degrades to the built-in scaffold instead of failing.
	tmpl, err := e.templates.Get(opts.Template)
	if err != nil {
		tmpl = nil
	}

	userPrompt, err := prompt.Presentation(tmpl, topic, opts.Language, opts.Slides)
	if err != nil {
		return nil, fmt.Errorf("failed to build outline prompt: %w", err)
	}

	system := prompt.DefaultSystemPrompt
	if tmpl != nil && tmpl.SystemPrompt != "" {
		system = tmpl.SystemPrompt
	}

	temperature := e.draftTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	pres, err := e.backend.GeneratePresentation(ctx, model.GenerateRequest{
		Prompt: userPrompt,
		System: system,
		Options: model.GenerateOptions{
			Temperature:   model.Float64(temperature),
			ContextWindow: opts.ContextWindow,
		},
	})
	if err != nil {
		e.logger.Error("Outline generation failed", "topic", topic, "error", err)
		return nil, err
	}

	e.logger.Info("Outline generated", "topic", topic, "slides", len(pres.Slides))
	return pres, nil
}

// Session returns a snapshot of the session, or a NotFound error if it does
// not exist or has expired.
func (e *Engine) Session(id string) (*core.Session, error) {
	return e.store.Get(id)
}

// DeleteSession removes the session, reporting whether it existed.
func (e *Engine) DeleteSession(id string) bool {
	deleted := e.store.Delete(id)
	if deleted {
		e.logger.Info("Deleted chat session", "session_id", id)
	}
	return deleted
}

// ActiveSessions returns the number of live sessions after sweeping expired
// ones.
func (e *Engine) ActiveSessions() int {
	return e.store.ActiveCount()
}

// Templates returns the engine's template registry. Registering a template
// makes it available to new sessions immediately.
func (e *Engine) Templates() *prompt.Registry {
	return e.templates
}
