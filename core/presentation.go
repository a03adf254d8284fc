package core

import (
	"fmt"
	"unicode/utf8"
)

// SlideType classifies a slide's structural role within a presentation.
type SlideType string

const (
	// SlideTitle opens the deck.
	SlideTitle SlideType = "title"
	// SlideContent carries body material.
	SlideContent SlideType = "content"
	// SlideSummary closes the deck.
	SlideSummary SlideType = "summary"
)

// Valid reports whether t is a known slide type.
func (t SlideType) Valid() bool {
	switch t {
	case SlideTitle, SlideContent, SlideSummary:
		return true
	}
	return false
}

// Field bounds enforced by Presentation.Validate. Lengths are counted in
// runes, matching how the backend counts characters.
const (
	MaxTitleLen      = 200
	MaxHeadingLen    = 200
	MaxSubheadingLen = 300
	MaxBullets       = 10
	MaxSlides        = 20
)

// Slide is one ordered slide descriptor. Subheading and Bullets are optional.
type Slide struct {
	Type       SlideType `json:"type"`
	Heading    string    `json:"heading"`
	Subheading string    `json:"subheading,omitempty"`
	Bullets    []string  `json:"bullets,omitempty"`
}

// Presentation is the validated structured content model: the shape the
// backend produces in structured mode, the draft attached to a session, and
// the input the renderer consumes.
type Presentation struct {
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

// Validate checks field bounds, enum membership and required fields,
// returning a validation Error naming the first offending field.
func (p *Presentation) Validate() error {
	if n := utf8.RuneCountInString(p.Title); n == 0 || n > MaxTitleLen {
		return NewValidation("title", fmt.Sprintf("must be 1-%d characters", MaxTitleLen))
	}
	if len(p.Slides) == 0 || len(p.Slides) > MaxSlides {
		return NewValidation("slides", fmt.Sprintf("must contain 1-%d slides", MaxSlides))
	}
	for i, slide := range p.Slides {
		field := func(name string) string { return fmt.Sprintf("slides[%d].%s", i, name) }
		if !slide.Type.Valid() {
			return NewValidation(field("type"), fmt.Sprintf("%q is not one of title, content, summary", string(slide.Type)))
		}
		if n := utf8.RuneCountInString(slide.Heading); n == 0 || n > MaxHeadingLen {
			return NewValidation(field("heading"), fmt.Sprintf("must be 1-%d characters", MaxHeadingLen))
		}
		if utf8.RuneCountInString(slide.Subheading) > MaxSubheadingLen {
			return NewValidation(field("subheading"), fmt.Sprintf("must be at most %d characters", MaxSubheadingLen))
		}
		if len(slide.Bullets) > MaxBullets {
			return NewValidation(field("bullets"), fmt.Sprintf("must contain at most %d entries", MaxBullets))
		}
		for j, bullet := range slide.Bullets {
			if bullet == "" {
				return NewValidation(fmt.Sprintf("slides[%d].bullets[%d]", i, j), "must not be empty")
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the presentation.
func (p *Presentation) Clone() *Presentation {
	clone := &Presentation{Title: p.Title, Slides: make([]Slide, len(p.Slides))}
	for i, slide := range p.Slides {
		cp := slide
		if slide.Bullets != nil {
			cp.Bullets = make([]string, len(slide.Bullets))
			copy(cp.Bullets, slide.Bullets)
		}
		clone.Slides[i] = cp
	}
	return clone
}
