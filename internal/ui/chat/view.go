// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file renders the transcript, input area and status bar.
package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/parley-tui/internal/session"
	"github.com/jeranaias/parley-tui/internal/util"
)

// chromeHeight is the number of rows taken by everything that is not the
// transcript viewport: input border (2) + input line (1) + status bar (1).
const chromeHeight = 4

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}
	if m.showHelp {
		return m.helpView()
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderMessages renders the loaded transcript, oldest first.
func (m Model) renderMessages() string {
	views := m.sess.MessageViews()
	var parts []string

	if m.sess.HasMoreHistory() {
		parts = append(parts, m.theme.HistoryHint.Width(m.width).Render("· PgUp for older messages ·"))
	}

	for _, v := range views {
		switch v.Kind {
		case session.KindUser:
			parts = append(parts, m.renderUser(v))
		case session.KindAssistant:
			parts = append(parts, m.renderAssistant(v))
		case session.KindError:
			parts = append(parts, m.renderError(v))
		}
	}
	return strings.Join(parts, "\n")
}

func (m Model) renderUser(v session.MessageView) string {
	label := m.theme.RoleUser.Render("You")
	if v.Finished != nil && !*v.Finished {
		label += " " + m.theme.FailedMark.Render("✗ not delivered (C-r to retry)")
	}
	bubble := m.theme.UserBubble.MaxWidth(m.width - 4).Render(v.Text)
	return lipgloss.JoinVertical(lipgloss.Right, label, bubble)
}

func (m Model) renderAssistant(v session.MessageView) string {
	label := m.theme.RoleAssistant.Render(m.assistantLabel())

	var body string
	switch {
	case v.Pending:
		body = m.theme.Placeholder.Render(v.Text)
	case v.Done:
		body = m.renderer.Final(v.Text)
	default:
		body = m.renderer.Streaming(v.Text)
	}

	bubble := m.theme.AssistantBubble.MaxWidth(m.width - 4).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, label, bubble)
}

func (m Model) renderError(v session.MessageView) string {
	title := m.theme.ErrorTitle.Render("✗ reply failed")
	detail := v.Text
	if v.Err != nil {
		detail = v.Err.Summary()
	}
	body := title + "\n" + m.theme.ErrorDetail.Render(detail)
	return m.theme.ErrorBubble.MaxWidth(m.width - 4).Render(body)
}

func (m Model) assistantLabel() string {
	title := m.sess.Index().Title
	if title == "" {
		return "Assistant"
	}
	return util.TruncateWidth(title, 32)
}

// =============================================================================
// STATUS BAR AND HELP
// =============================================================================

func (m Model) statusBar() string {
	var left []string

	title := m.sess.Index().Title
	if title == "" {
		title = "parley"
	}
	left = append(left, m.theme.StatusTitle.Render(util.TruncateWidth(util.CollapseNewlines(title), 40)))

	if m.sess.Busy() {
		left = append(left, m.theme.StatusBusy.Render("● streaming"))
	}
	if p := m.sess.Index().PromptID; p != "" {
		left = append(left, m.theme.StatusPrompt.Render("prompt:"+p))
	}
	if m.costSummary != nil {
		if c := m.costSummary(); c != "" {
			left = append(left, m.theme.StatusCost.Render(c))
		}
	}
	if m.status != "" {
		// Error strings can span lines; the bar has exactly one.
		left = append(left, m.theme.ErrorDetail.Render(util.CollapseNewlines(m.status)))
	}

	var right []string
	for _, b := range m.keys.ShortHelp() {
		right = append(right,
			m.theme.ShortcutKey.Render(b.Help().Key)+" "+m.theme.ShortcutDesc.Render(b.Help().Desc))
	}

	leftStr := strings.Join(left, "  ")
	rightStr := strings.Join(right, "  ")

	gap := m.width - lipgloss.Width(leftStr) - lipgloss.Width(rightStr) - 2
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(leftStr)
	}
	return m.theme.StatusBar.Width(m.width).Render(leftStr + strings.Repeat(" ", gap) + rightStr)
}

func (m Model) helpView() string {
	var b strings.Builder
	b.WriteString(m.theme.StatusTitle.Render("parley keys"))
	b.WriteString("\n\n")
	for _, group := range m.keys.FullHelp() {
		for _, binding := range group {
			b.WriteString("  ")
			b.WriteString(m.theme.ShortcutKey.Width(12).Render(binding.Help().Key))
			b.WriteString(m.theme.ShortcutDesc.Render(binding.Help().Desc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(m.theme.ShortcutDesc.Render("press F1 to close"))
	return b.String()
}
