// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea messages that bridge the session engine
// into the update loop. The engine notifies on its own goroutines; main wires
// its notifier to program.Send so every change arrives here as a
// SessionChangedMsg.
package chat

import "github.com/jeranaias/parley-tui/internal/session"

// SessionChangedMsg carries one session notification into the update loop.
type SessionChangedMsg struct {
	Change session.Change
}

// sendDoneMsg reports the outcome of a SendMessage command.
type sendDoneMsg struct {
	err error
}

// resendDoneMsg reports the outcome of a ResendMessage command.
type resendDoneMsg struct {
	err error
}

// historyLoadedMsg reports the outcome of a LoadPrevLogs command.
type historyLoadedMsg struct {
	loaded int
	err    error
}
