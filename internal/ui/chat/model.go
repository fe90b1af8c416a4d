// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley-tui/internal/session"
	"github.com/jeranaias/parley-tui/internal/ui/render"
	"github.com/jeranaias/parley-tui/internal/ui/styles"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for one chat conversation. It renders
// session snapshots; all mutation goes through the session engine, whose
// notifications come back in as SessionChangedMsg.
type Model struct {
	sess     *session.Session
	theme    *styles.Theme
	renderer *render.Renderer
	keys     KeyMap

	viewport viewport.Model
	input    textinput.Model

	width  int
	height int
	ready  bool

	showHelp bool
	status   string

	// Input-history recall state. recallID anchors the walk; draft holds
	// the text that was being typed before recall started.
	recalling bool
	recallID  string
	draft     string

	// costSummary is polled for the status bar (nil = no cost display).
	costSummary func() string
}

// New creates the chat model.
func New(sess *session.Session, theme *styles.Theme, renderer *render.Renderer, costSummary func() string) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.Placeholder = "Type a message"
	ti.CharLimit = 0
	ti.Focus()

	return Model{
		sess:        sess,
		theme:       theme,
		renderer:    renderer,
		keys:        DefaultKeyMap(),
		input:       ti,
		costSummary: costSummary,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionChangedMsg:
		return m.handleChange(msg.Change), nil

	case sendDoneMsg:
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
		}
		return m, nil

	case resendDoneMsg:
		if msg.err != nil {
			m.status = "resend failed: " + msg.err.Error()
		}
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			m.status = "history load failed: " + msg.err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	contentHeight := msg.Height - chromeHeight
	if contentHeight < 1 {
		contentHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(msg.Width, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = contentHeight
	}
	m.input.Width = msg.Width - 4
	m.renderer.SetWidth(msg.Width - 8)

	m.refreshContent(false)
	m.viewport.GotoBottom()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Stop):
		if m.sess.Busy() {
			m.sess.StopReply(context.Background())
			m.status = "stopping…"
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		return m.retryFailed()

	case key.Matches(msg, m.keys.Recall):
		m.recallPrev()
		return m, nil

	case key.Matches(msg, m.keys.RecallNext):
		m.recallNext()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m.maybeLoadHistory()

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m.maybeLoadHistory()

	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleChange(c session.Change) Model {
	switch c.Kind {
	case session.ChangePrepend:
		// Keep the reader anchored: new lines land above the viewport, so
		// shift the offset by exactly the growth.
		before := m.viewport.TotalLineCount()
		m.refreshContent(false)
		grown := m.viewport.TotalLineCount() - before
		if grown > 0 {
			m.viewport.SetYOffset(m.viewport.YOffset + grown)
		}
	case session.ChangeBusy:
		m.status = ""
		m.refreshContent(true)
	default:
		m.refreshContent(true)
	}
	return m
}

// refreshContent re-renders the transcript. When follow is true and the
// viewport was already at the bottom it stays pinned there.
func (m *Model) refreshContent(follow bool) {
	if !m.ready {
		return
	}
	wasBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if follow && wasBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.sess.Busy() {
		return m, nil
	}
	m.input.Reset()
	m.recalling = false
	m.recallID = ""
	m.draft = ""
	m.status = ""

	sess := m.sess
	return m, func() tea.Msg {
		_, err := sess.SendMessage(context.Background(), text)
		return sendDoneMsg{err: err}
	}
}

// retryFailed resends the most recent user message whose delivery failed.
func (m Model) retryFailed() (tea.Model, tea.Cmd) {
	if m.sess.Busy() {
		return m, nil
	}
	views := m.sess.MessageViews()
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		if v.Kind == session.KindUser && v.Finished != nil && !*v.Finished {
			sess := m.sess
			id := v.LogID
			return m, func() tea.Msg {
				return resendDoneMsg{err: sess.ResendMessage(context.Background(), id)}
			}
		}
	}
	return m, nil
}

// maybeLoadHistory fetches an older page once the reader hits the top.
func (m Model) maybeLoadHistory() (tea.Model, tea.Cmd) {
	if !m.viewport.AtTop() || !m.sess.HasMoreHistory() {
		return m, nil
	}
	sess := m.sess
	return m, func() tea.Msg {
		n, err := sess.LoadPrevLogs(context.Background())
		return historyLoadedMsg{loaded: n, err: err}
	}
}

func (m *Model) recallPrev() {
	from := ""
	if m.recalling {
		from = m.recallID
	} else {
		m.draft = m.input.Value()
	}
	id, content, ok := m.sess.PrevUserLog(from)
	if !ok {
		return
	}
	m.recalling = true
	m.recallID = id
	m.input.SetValue(content)
	m.input.CursorEnd()
}

func (m *Model) recallNext() {
	if !m.recalling {
		return
	}
	id, content, ok := m.sess.NextUserLog(m.recallID)
	if ok {
		m.recallID = id
		m.input.SetValue(content)
		m.input.CursorEnd()
		return
	}
	// Walked past the newest entry: restore the interrupted draft.
	m.recalling = false
	m.recallID = ""
	m.input.SetValue(m.draft)
	m.input.CursorEnd()
}
