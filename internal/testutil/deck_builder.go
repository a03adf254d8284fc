package testutil

import "github.com/slidesmith/slidesmith/core"

// DeckBuilder provides a fluent helper for constructing well-formed
// presentations in tests: a title slide first, a summary slide last.
// Example:
//
//	deck := NewDeckBuilder("Quarterly Review").
//		Subtitle("Q2").
//		Content("Numbers", "Revenue up").
//		Summary("Outlook").
//		Build()
//
// Chain only the parts you need; sensible defaults are applied.
type DeckBuilder struct {
	title    string
	subtitle string
	content  []core.Slide
	summary  *core.Slide
}

// NewDeckBuilder starts a presentation titled title. The first slide is a
// title slide carrying the same heading.
func NewDeckBuilder(title string) *DeckBuilder {
	return &DeckBuilder{title: title}
}

// Subtitle sets the subheading of the title slide (chainable).
func (b *DeckBuilder) Subtitle(s string) *DeckBuilder {
	b.subtitle = s
	return b
}

// Content appends a content slide with the given heading and bullets
// (chainable).
func (b *DeckBuilder) Content(heading string, bullets ...string) *DeckBuilder {
	b.content = append(b.content, contentSlide(core.SlideContent, heading, bullets))
	return b
}

// Summary overrides the closing summary slide (chainable). Without it, Build
// closes the deck with a plain "Summary" slide.
func (b *DeckBuilder) Summary(heading string, bullets ...string) *DeckBuilder {
	s := contentSlide(core.SlideSummary, heading, bullets)
	b.summary = &s
	return b
}

// Build constructs the core.Presentation value.
func (b *DeckBuilder) Build() *core.Presentation {
	slides := make([]core.Slide, 0, len(b.content)+2)
	slides = append(slides, core.Slide{Type: core.SlideTitle, Heading: b.title, Subheading: b.subtitle})
	slides = append(slides, b.content...)

	closer := core.Slide{Type: core.SlideSummary, Heading: "Summary"}
	if b.summary != nil {
		closer = *b.summary
	}
	slides = append(slides, closer)

	return &core.Presentation{Title: b.title, Slides: slides}
}

func contentSlide(typ core.SlideType, heading string, bullets []string) core.Slide {
	s := core.Slide{Type: typ, Heading: heading}
	if len(bullets) > 0 {
		s.Bullets = bullets
	}
	return s
}
