// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns message text into styled terminal output.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// =============================================================================
// MESSAGE RENDERER
// =============================================================================

// Options configures a Renderer.
type Options struct {
	// Markdown renders finished assistant replies through glamour.
	Markdown bool
	// CodeStyle is the chroma style for fenced code blocks.
	CodeStyle string
	// Dark selects the dark glamour style sheet.
	Dark bool
	// WordWrap is the render width (0 = 80).
	WordWrap int
}

// Renderer renders assistant reply text. Finished replies get full markdown
// treatment; text still streaming is passed through with only code fence
// highlighting, because reflowing partial markdown on every flush makes the
// viewport jump.
type Renderer struct {
	mu   sync.Mutex
	opts Options
	md   *glamour.TermRenderer
}

// New creates a renderer.
func New(opts Options) *Renderer {
	if opts.WordWrap <= 0 {
		opts.WordWrap = 80
	}
	r := &Renderer{opts: opts}
	r.rebuild()
	return r
}

// SetOptions applies new rendering preferences, e.g. after a config reload.
func (r *Renderer) SetOptions(markdown bool, codeStyle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Markdown = markdown
	if codeStyle != "" {
		r.opts.CodeStyle = codeStyle
	}
}

// SetWidth adjusts the word wrap width, rebuilding the markdown renderer.
func (r *Renderer) SetWidth(width int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width <= 0 || width == r.opts.WordWrap {
		return
	}
	r.opts.WordWrap = width
	r.rebuild()
}

// rebuild recreates the glamour renderer. Caller holds r.mu (or is New).
func (r *Renderer) rebuild() {
	style := styles.LightStyle
	if r.opts.Dark {
		style = styles.DarkStyle
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(r.opts.WordWrap),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails.
		md = nil
	}
	r.md = md
}

// Final renders a finished reply. With markdown disabled (or glamour
// unavailable) only code fences are highlighted.
func (r *Renderer) Final(text string) string {
	r.mu.Lock()
	md := r.md
	useMarkdown := r.opts.Markdown
	codeStyle := r.opts.CodeStyle
	r.mu.Unlock()

	if !useMarkdown || md == nil {
		return HighlightFences(text, codeStyle)
	}
	rendered, err := md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// Streaming renders a reply that is still arriving. Closed code fences are
// highlighted; everything else stays verbatim so partial markdown never
// reflows under the cursor.
func (r *Renderer) Streaming(text string) string {
	r.mu.Lock()
	codeStyle := r.opts.CodeStyle
	r.mu.Unlock()
	return HighlightFences(text, codeStyle)
}
