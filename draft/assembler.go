// Package draft turns a guided conversation into a stored presentation
// draft. The assembler renders the transcript into a structured-mode prompt,
// invokes the backend, and attaches the validated result to the session.
package draft

import (
	"context"
	"fmt"
	"time"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/logging"
	"github.com/slidesmith/slidesmith/model"
	"github.com/slidesmith/slidesmith/prompt"
)

// DefaultTemperature keeps draft assembly nearly deterministic.
const DefaultTemperature = 0.15

// Options holds configuration overrides passed to NewAssembler().
type Options struct {
	// Temperature is the sampling temperature for draft assembly.
	Temperature float64
	// Logger receives assembly lifecycle logs.
	Logger logging.Logger
}

// Assembler builds presentation drafts from session transcripts.
type Assembler struct {
	store     core.SessionStore
	backend   model.Backend
	templates *prompt.Registry

	temperature float64
	logger      logging.Logger
}

// NewAssembler constructs an Assembler with optional overrides.
func NewAssembler(store core.SessionStore, backend model.Backend, templates *prompt.Registry, optFns ...func(o *Options)) *Assembler {
	opts := Options{
		Temperature: DefaultTemperature,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Assembler{
		store:       store,
		backend:     backend,
		templates:   templates,
		temperature: opts.Temperature,
		logger:      opts.Logger,
	}
}

// Build assembles a draft from the session's transcript and stores it on the
// session, leaving the ready flag untouched. Backend failures propagate
// unchanged and no partial draft is stored.
func (a *Assembler) Build(ctx context.Context, sessionID string) (*core.Presentation, error) {
	sess, err := a.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Sessions can outlive a registry edit; draft with a bare template then.
	tmpl, err := a.templates.Get(sess.Template)
	if err != nil {
		tmpl = &prompt.Template{Name: "General"}
	}

	start := time.Now()
	pres, err := a.backend.GeneratePresentation(ctx, model.GenerateRequest{
		Prompt:  prompt.Draft(sess.History()),
		System:  prompt.DraftSystem(tmpl),
		Options: model.GenerateOptions{Temperature: model.Float64(a.temperature)},
	})
	if err != nil {
		a.logger.Error("Draft assembly failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	if err := a.store.SetDraft(sessionID, pres); err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}

	a.logger.Info("Draft assembled",
		"session_id", sessionID,
		"slides", len(pres.Slides),
		"duration", time.Since(start),
	)

	return pres, nil
}
