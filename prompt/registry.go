package prompt

import (
	"fmt"
	"sort"
	"sync"

	"github.com/slidesmith/slidesmith/core"
)

// DefaultGreeting opens guided sessions whose template does not set its own
// greeting.
const DefaultGreeting = "Hello! I'll help you create a presentation. Tell me about your idea."

// DefaultSystemPrompt steers one-shot outline generation when the template
// does not set its own system prompt.
const DefaultSystemPrompt = "You are a professional presentation designer. Return valid JSON only."

// Template describes one kind of guided presentation.
type Template struct {
	// Key identifies the template in the registry ("general", "project_init").
	Key string
	// Name is the human readable template name used inside prompts.
	Name string
	// Description summarizes what the template is for.
	Description string
	// Guided reports whether the template supports guided sessions.
	Guided bool
	// Greeting opens a guided session as the first assistant message. Empty
	// means DefaultGreeting.
	Greeting string
	// SystemPrompt steers one-shot outline generation. Empty means
	// DefaultSystemPrompt.
	SystemPrompt string
	// ConversationPrompt steers the model during guided conversation turns.
	ConversationPrompt string
	// RequiredInfo lists what the model should gather before drafting.
	RequiredInfo []string
	// OutlinePrompt is the scaffold for one-shot outline generation. The
	// placeholders {{.Topic}}, {{.Language}}, {{.Slides}} and
	// {{.LastContentSlide}} are substituted at build time. Empty means the
	// built-in scaffold.
	OutlinePrompt string
}

func (t *Template) clone() *Template {
	clone := *t
	if t.RequiredInfo != nil {
		clone.RequiredInfo = make([]string, len(t.RequiredInfo))
		copy(clone.RequiredInfo, t.RequiredInfo)
	}
	return &clone
}

// Registry keeps templates by key. It is safe for concurrent use; templates
// handed out are copies, so callers cannot mutate registered state.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry returns a registry seeded with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for _, tmpl := range builtins() {
		r.templates[tmpl.Key] = tmpl
	}
	return r
}

// Register adds or replaces the template stored under tmpl.Key.
func (r *Registry) Register(tmpl Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tmpl.Key] = tmpl.clone()
}

// Get returns the template registered under key.
func (r *Registry) Get(key string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, ok := r.templates[key]
	if !ok {
		return nil, core.NewNotFound(core.CodeTemplateNotFound, fmt.Sprintf("template %q not found", key))
	}
	return tmpl.clone(), nil
}

// List returns all registered templates sorted by key.
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Template, 0, len(r.templates))
	for _, tmpl := range r.templates {
		list = append(list, tmpl.clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// GuidedKeys returns the keys of all templates that support guided sessions,
// sorted.
func (r *Registry) GuidedKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.templates))
	for key, tmpl := range r.templates {
		if tmpl.Guided {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func builtins() []*Template {
	return []*Template{
		{
			Key:          "general",
			Name:         "General",
			Description:  "General purpose presentations for any topic",
			Guided:       true,
			Greeting:     DefaultGreeting,
			SystemPrompt: DefaultSystemPrompt,
			ConversationPrompt: "You are a presentation consultant. Help the user turn their idea into a " +
				"clear presentation: understand the topic, who the audience is, and which key points " +
				"the slides must make. Ask one focused question at a time and keep your answers short.",
			RequiredInfo: []string{"Topic", "Audience", "Key points"},
		},
		{
			Key:          "project_init",
			Name:         "Project Initialization",
			Description:  "Kickoff deck for starting a new project",
			Guided:       true,
			Greeting:     "Hi! Let's build a kickoff deck for your project. What project are you starting?",
			SystemPrompt: "You are a professional presentation designer specialized in project kickoff decks. Return valid JSON only.",
			ConversationPrompt: "You are a presentation consultant for project kickoffs. Gather the project " +
				"goal, the team and their roles, the timeline with its milestones, and the known " +
				"risks. Ask one focused question at a time and keep your answers short.",
			RequiredInfo: []string{"Project goal", "Team and roles", "Timeline and milestones", "Risks"},
			OutlinePrompt: `Generate a professional project kickoff presentation in {{.Language}} about: "{{.Topic}}"

Return ONLY valid JSON with exactly {{.Slides}} slides:
{
    "title": "Presentation title",
    "slides": [
        {"type": "title|content|summary", "heading": "...", "subheading": "...", "bullets": [...]}
    ]
}

Slide 1: title slide with the project name
Slides 2-{{.LastContentSlide}}: goal, team, timeline, risks
Slide {{.Slides}}: summary with next steps`,
		},
	}
}
