package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/logging"
	"github.com/slidesmith/slidesmith/model"
	"github.com/slidesmith/slidesmith/prompt"
)

// Event is one item of a turn's caller-facing stream. Content carries the
// next displayable piece of the reply; the final event has Done set and
// reports whether the session became ready for drafting.
type Event struct {
	Content       string `json:"content"`
	Done          bool   `json:"done"`
	ReadyForDraft bool   `json:"ready_for_draft"`
}

// DefaultEventBufferSize is the event channel buffer used when no override
// is given. Zero is valid and makes event delivery synchronous.
const DefaultEventBufferSize = 100

// Options holds configuration overrides passed to NewCoordinator().
type Options struct {
	// Temperature overrides the backend sampling temperature for
	// conversational turns. Nil keeps the backend default.
	Temperature *float64
	// EventBufferSize sets channel buffering for turn events.
	EventBufferSize int
	// Logger receives turn lifecycle logs.
	Logger logging.Logger
}

// Coordinator runs guided conversation turns: it composes the prompt from
// the session transcript, streams the model reply while holding back the
// ready marker, and commits the exchange to the session only once the
// stream has completed. A failed or cancelled turn leaves the transcript
// untouched.
type Coordinator struct {
	store     core.SessionStore
	backend   model.Backend
	templates *prompt.Registry

	temperature     *float64
	eventBufferSize int
	logger          logging.Logger
}

// NewCoordinator constructs a Coordinator with optional overrides.
func NewCoordinator(store core.SessionStore, backend model.Backend, templates *prompt.Registry, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		EventBufferSize: DefaultEventBufferSize,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{
		store:           store,
		backend:         backend,
		templates:       templates,
		temperature:     opts.Temperature,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
	}
}

// StreamMessage starts one asynchronous conversation turn for text in the
// given session. It returns the turn ID together with the event stream and
// an error channel that delivers at most one terminal error before closing.
//
// The user message and the cleaned reply are committed to the session
// together once the stream completes, strictly after the last content event
// has been delivered and before the final done event. On failure or
// cancellation nothing is committed.
func (c *Coordinator) StreamMessage(ctx context.Context, sessionID, text string) (string, <-chan Event, <-chan error, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, nil, core.NewValidation("message", "must not be empty")
	}

	sess, err := c.store.Get(sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	tmpl, err := c.templates.Get(sess.Template)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	turnID := uuid.NewString()
	eventsCh := make(chan Event, c.eventBufferSize)
	errorsCh := make(chan error, 1)

	req := model.StreamRequest{
		Prompt: prompt.Conversation(sess.History(), text),
		System: tmpl.ConversationPrompt,
	}
	req.Options.Temperature = c.temperature

	go c.runTurn(ctx, turnID, sessionID, text, req, eventsCh, errorsCh)

	return turnID, eventsCh, errorsCh, nil
}

func (c *Coordinator) runTurn(
	ctx context.Context,
	turnID string,
	sessionID string,
	text string,
	req model.StreamRequest,
	eventsCh chan<- Event,
	errorsCh chan<- error,
) {
	defer func() { close(eventsCh); close(errorsCh) }()

	start := time.Now()
	fragments, streamErrs := c.backend.Stream(ctx, req)

	forward := func(ev Event) bool {
		select {
		case <-ctx.Done():
			return false
		case eventsCh <- ev:
			return true
		}
	}
	abandon := func() {
		errorsCh <- core.NewTransport(core.CodeStreamInterrupted, "turn abandoned by caller", ctx.Err())
		c.logger.Warn("Turn abandoned by caller",
			"session_id", sessionID,
			"turn_id", turnID,
		)
	}

	filter := newMarkerFilter(prompt.ReadyMarker)
	var reply strings.Builder
	delivered := 0
	sawDone := false

	for frag := range fragments {
		if frag.Done {
			sawDone = true
		}
		out := filter.Write(frag.Text)
		if out == "" {
			continue
		}
		reply.WriteString(out)
		if !forward(Event{Content: out}) {
			abandon()
			return
		}
		delivered++
	}

	if err := <-streamErrs; err != nil {
		errorsCh <- err
		c.logger.Error("Turn stream failed",
			"session_id", sessionID,
			"turn_id", turnID,
			"error", err,
		)
		return
	}
	if !sawDone {
		errorsCh <- core.NewTransport(core.CodeStreamInterrupted, "stream ended before completion", nil)
		return
	}

	if tail := filter.Flush(); tail != "" {
		reply.WriteString(tail)
		if !forward(Event{Content: tail}) {
			abandon()
			return
		}
		delivered++
	}

	// The turn commits only here, after the full reply has been delivered.
	clean := strings.TrimSpace(reply.String())
	if _, err := c.store.AddMessage(sessionID, core.RoleUser, text); err != nil {
		errorsCh <- fmt.Errorf("failed to commit user message: %w", err)
		return
	}
	if _, err := c.store.AddMessage(sessionID, core.RoleAssistant, clean); err != nil {
		errorsCh <- fmt.Errorf("failed to commit assistant message: %w", err)
		return
	}

	ready := filter.Seen()
	if ready {
		if err := c.store.SetReady(sessionID, true); err != nil {
			errorsCh <- fmt.Errorf("failed to mark session ready: %w", err)
			return
		}
	}

	c.logger.Info("Chat message processed",
		"session_id", sessionID,
		"turn_id", turnID,
		"fragments", delivered,
		"ready_for_draft", ready,
		"duration", time.Since(start),
	)

	forward(Event{Done: true, ReadyForDraft: ready})
}
