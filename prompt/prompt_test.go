package prompt

import (
	"strings"
	"testing"

	"github.com/slidesmith/slidesmith/core"
)

func msg(role core.Role, content string) core.ChatMessage {
	return core.ChatMessage{Role: role, Content: content}
}

func TestConversationRendersHistoryAndMarkerInstruction(t *testing.T) {
	history := []core.ChatMessage{
		msg(core.RoleAssistant, "Hello! Tell me about your idea."),
		msg(core.RoleUser, "A deck about bees."),
		msg(core.RoleAssistant, "Who is the audience?"),
	}

	got := Conversation(history, "Beekeepers, mostly.")

	wantPrefix := "Previous conversation:\n" +
		"Assistant: Hello! Tell me about your idea.\n" +
		"User: A deck about bees.\n" +
		"Assistant: Who is the audience?\n" +
		"\nUser: Beekeepers, mostly.\n"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("unexpected prompt prefix:\n%s", got)
	}
	if !strings.HasSuffix(got, ReadyMarker) {
		t.Errorf("prompt should end with the ready marker, got:\n%s", got)
	}
	if n := strings.Count(got, ReadyMarker); n != 1 {
		t.Errorf("expected exactly one marker occurrence, got %d", n)
	}
}

func TestDraftRendersTranscript(t *testing.T) {
	history := []core.ChatMessage{
		msg(core.RoleAssistant, "Hello!"),
		msg(core.RoleUser, "A deck about bees."),
	}

	got := Draft(history)

	if !strings.HasPrefix(got, "Based on this conversation, create a presentation draft:") {
		t.Errorf("unexpected prompt prefix:\n%s", got)
	}
	if !strings.Contains(got, "Assistant: Hello!\nUser: A deck about bees.") {
		t.Errorf("transcript missing from prompt:\n%s", got)
	}
	if !strings.Contains(got, "5-7 slides") {
		t.Errorf("slide range missing from prompt:\n%s", got)
	}
}

func TestDraftSystemListsRequiredInfo(t *testing.T) {
	tmpl := &Template{
		Key:          "project_init",
		Name:         "Project Initialization",
		RequiredInfo: []string{"Project goal", "Risks"},
	}

	got := DraftSystem(tmpl)

	if !strings.Contains(got, "Template: Project Initialization\n") {
		t.Errorf("template name missing:\n%s", got)
	}
	if !strings.Contains(got, "Required information:\n- Project goal\n- Risks\n") {
		t.Errorf("required info missing:\n%s", got)
	}
	if !strings.Contains(got, `{"type": "summary", "heading": "Conclusion"`) {
		t.Errorf("output format scaffold missing:\n%s", got)
	}
}

func TestDraftSystemWithoutRequiredInfo(t *testing.T) {
	got := DraftSystem(&Template{Name: "General"})

	if strings.Contains(got, "Required information:") {
		t.Errorf("empty required info should not be listed:\n%s", got)
	}
}

func TestPresentationClampsSlideCount(t *testing.T) {
	tests := []struct {
		name        string
		slides      int
		wantCount   string
		wantSummary string
	}{
		{"above maximum", 50, "exactly 10 slides", "Slide 10: summary slide"},
		{"below minimum", -3, "exactly 1 slides", "Slide 1: summary slide"},
		{"in range", 5, "exactly 5 slides", "Slide 5: summary slide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Presentation(nil, "Bees", "en", tt.slides)
			if err != nil {
				t.Fatalf("Presentation: %v", err)
			}
			if !strings.Contains(got, tt.wantCount) {
				t.Errorf("expected %q in prompt:\n%s", tt.wantCount, got)
			}
			if !strings.Contains(got, tt.wantSummary) {
				t.Errorf("expected %q in prompt:\n%s", tt.wantSummary, got)
			}
		})
	}
}

func TestPresentationRendersTopicAndLanguage(t *testing.T) {
	got, err := Presentation(nil, "Bee colonies", "de", 5)
	if err != nil {
		t.Fatalf("Presentation: %v", err)
	}

	if !strings.Contains(got, `in de about: "Bee colonies"`) {
		t.Errorf("topic or language missing:\n%s", got)
	}
	if !strings.Contains(got, "Slides 2-4: content slides") {
		t.Errorf("content slide range missing:\n%s", got)
	}
}

func TestPresentationUsesTemplateScaffold(t *testing.T) {
	tmpl := &Template{OutlinePrompt: "Write about {{.Topic}} in {{.Language}} with {{.Slides}} slides."}

	got, err := Presentation(tmpl, "Bees", "de", 6)
	if err != nil {
		t.Fatalf("Presentation: %v", err)
	}
	if got != "Write about Bees in de with 6 slides." {
		t.Errorf("unexpected rendering: %q", got)
	}
}

func TestPresentationScaffoldErrors(t *testing.T) {
	if _, err := Presentation(&Template{OutlinePrompt: "{{.Missing}}"}, "Bees", "en", 5); err == nil {
		t.Error("expected error for unknown placeholder")
	}
	if _, err := Presentation(&Template{OutlinePrompt: "{{.Topic"}, "Bees", "en", 5); err == nil {
		t.Error("expected error for unparsable scaffold")
	}
}
