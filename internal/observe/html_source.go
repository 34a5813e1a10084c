package observe

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors locate the reply and its generation markers in the page.
type Selectors struct {
	MessageBubble string `json:"messageBubble"`
	Paragraph     string `json:"paragraph"`
	Container     string `json:"container"` // ancestor the markers are searched in
	Spinner       string `json:"spinner"`
	Typing        string `json:"typing"`
	ShareButton   string `json:"shareButton"`
}

// DefaultSelectors matches the chat page's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		MessageBubble: ".message-bubble",
		Paragraph:     "p",
		Container:     ".relative.group",
		Spinner:       ".animate-spin",
		Typing:        ".typing-indicator",
		ShareButton:   `button[aria-label="Share conversation"]`,
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (sel Selectors) WithDefaults() Selectors {
	def := DefaultSelectors()
	if sel.MessageBubble == "" {
		sel.MessageBubble = def.MessageBubble
	}
	if sel.Paragraph == "" {
		sel.Paragraph = def.Paragraph
	}
	if sel.Container == "" {
		sel.Container = def.Container
	}
	if sel.Spinner == "" {
		sel.Spinner = def.Spinner
	}
	if sel.Typing == "" {
		sel.Typing = def.Typing
	}
	if sel.ShareButton == "" {
		sel.ShareButton = def.ShareButton
	}
	return sel
}

// HTMLFunc returns document markup.
type HTMLFunc func(ctx context.Context) (string, error)

// HTMLSource reads bubbles out of an HTML snapshot, such as a page saved
// from the browser. The snapshot is re-parsed, so markup the HTML parser
// restructures (block elements inside a paragraph) can lose text; live
// pages are read with LastBubbleJS instead.
type HTMLSource struct {
	fetch HTMLFunc
	sel   Selectors
}

// NewHTMLSource creates a Source backed by fetch. Empty selectors fall back
// to DefaultSelectors.
func NewHTMLSource(fetch HTMLFunc, sel Selectors) *HTMLSource {
	return &HTMLSource{fetch: fetch, sel: sel.WithDefaults()}
}

// LastBubble implements Source.
func (s *HTMLSource) LastBubble(ctx context.Context) (*Bubble, error) {
	html, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	return ParseLastBubble(html, s.sel)
}

// ParseLastBubble extracts the newest message bubble from a document.
// It returns nil when the document has no message bubbles.
func ParseLastBubble(html string, sel Selectors) (*Bubble, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	bubbles := doc.Find(sel.MessageBubble)
	if bubbles.Length() == 0 {
		return nil, nil
	}
	last := bubbles.Last()

	b := &Bubble{}
	last.Find(sel.Paragraph).Each(func(_ int, p *goquery.Selection) {
		b.Texts = append(b.Texts, p.Text())
	})

	container := last.Closest(sel.Container)
	if container.Length() > 0 {
		b.HasContainer = true
		b.Spinner = container.Find(sel.Spinner).Length() > 0
		b.Typing = container.Find(sel.Typing).Length() > 0
		b.ShareButton = container.Find(sel.ShareButton).Length() > 0
	}
	return b, nil
}
