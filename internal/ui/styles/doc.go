// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the parley TUI.
//
// The palette is built on lipgloss.AdaptiveColor so every color carries a
// light and a dark variant; Theme resolves them against the configured (or
// detected) background and exposes ready-to-use styles for message bubbles,
// the input area and the status bar.
package styles
