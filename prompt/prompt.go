package prompt

import (
	"fmt"
	"strings"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/internal/util"
)

// ReadyMarker is the in-band token a model appends to a reply once it has
// gathered enough information to draft. It is stripped from everything the
// caller sees; only the ready flag survives.
const ReadyMarker = "[READY_FOR_DRAFT]"

// Outline slide count bounds for one-shot generation.
const (
	MinOutlineSlides     = 1
	MaxOutlineSlides     = 10
	DefaultOutlineSlides = 5
)

const conversationScaffold = `Previous conversation:
%s

User: %s

Respond naturally as the assistant. Remember to acknowledge what you understand, identify missing information, and make helpful suggestions. Keep responses concise (max 2-3 paragraphs).

When you have gathered all necessary information, end your response with exactly this phrase on its own line:
` + ReadyMarker

const draftFormatScaffold = `
Output JSON in this exact format:
{
  "title": "Presentation Title",
  "slides": [
    {"type": "title", "heading": "Main Title", "subheading": "Subtitle"},
    {"type": "content", "heading": "Section", "bullets": ["Point 1", "Point 2", "Point 3"]},
    {"type": "summary", "heading": "Conclusion", "bullets": ["Key takeaway 1", "Key takeaway 2"]}
  ]
}`

const draftScaffold = `Based on this conversation, create a presentation draft:

%s

Generate a professional presentation structure with 5-7 slides. Output valid JSON only.`

const fallbackOutlineScaffold = `Generate a professional PowerPoint presentation in {{.Language}} about: "{{.Topic}}"

Return ONLY valid JSON with exactly {{.Slides}} slides:
{
    "title": "Presentation title",
    "slides": [
        {"type": "title|content|summary", "heading": "...", "subheading": "...", "bullets": [...]}
    ]
}

Slide 1: title slide
Slides 2-{{.LastContentSlide}}: content slides
Slide {{.Slides}}: summary slide`

// Conversation builds the prompt for one conversational turn. The transcript
// is rendered as alternating "User:"/"Assistant:" lines; userMessage is the
// turn being answered and is not part of history yet.
func Conversation(history []core.ChatMessage, userMessage string) string {
	return fmt.Sprintf(conversationScaffold, historyLines(history), userMessage)
}

// DraftSystem builds the system prompt for assembling a draft in the context
// of tmpl. It names the template, lists the information the conversation was
// meant to gather and pins down the output format.
func DraftSystem(tmpl *Template) string {
	var b strings.Builder
	b.WriteString("You are creating a presentation draft based on a conversation.\n")
	b.WriteString("Use the information gathered to create a structured presentation outline.\n\n")
	fmt.Fprintf(&b, "Template: %s\n", tmpl.Name)
	if len(tmpl.RequiredInfo) > 0 {
		b.WriteString("Required information:\n")
		for _, info := range tmpl.RequiredInfo {
			fmt.Fprintf(&b, "- %s\n", info)
		}
	}
	b.WriteString(draftFormatScaffold)
	return b.String()
}

// Draft builds the user prompt for assembling a draft from the full
// transcript.
func Draft(history []core.ChatMessage) string {
	return fmt.Sprintf(draftScaffold, historyLines(history))
}

// Presentation builds the one-shot outline prompt. The slide count is
// clamped to [MinOutlineSlides, MaxOutlineSlides]. A nil template or one
// without an outline scaffold falls back to the built-in scaffold.
func Presentation(tmpl *Template, topic, language string, slides int) (string, error) {
	if slides < MinOutlineSlides {
		slides = MinOutlineSlides
	}
	if slides > MaxOutlineSlides {
		slides = MaxOutlineSlides
	}

	scaffold := ""
	if tmpl != nil {
		scaffold = tmpl.OutlinePrompt
	}
	if scaffold == "" {
		scaffold = fallbackOutlineScaffold
	}

	return util.RenderTemplate(scaffold, map[string]any{
		"Topic":            topic,
		"Language":         language,
		"Slides":           slides,
		"LastContentSlide": slides - 1,
	})
}

func historyLines(history []core.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		speaker := "Assistant"
		if msg.Role == core.RoleUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
