// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The package renders session snapshots and never mutates conversation
// state itself: key presses become session calls executed as Bubble Tea
// commands, and session notifications come back into the update loop as
// SessionChangedMsg (wired up by main via program.Send).
package chat
