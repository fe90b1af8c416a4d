// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the in-memory message types for one conversation.
package model

// =============================================================================
// PLACEHOLDER ANIMATION
// =============================================================================

// placeholderFrames is the fixed cycle shown while a reply is pending.
var placeholderFrames = []string{".", "..", "..."}

// PlaceholderFrameCount returns the number of animation frames.
func PlaceholderFrameCount() int {
	return len(placeholderFrames)
}

// PlaceholderFrame returns the frame for an arbitrary tick counter.
func PlaceholderFrame(tick int) string {
	if tick < 0 {
		tick = -tick
	}
	return placeholderFrames[tick%len(placeholderFrames)]
}

// IsPlaceholder reports whether text is one of the animation frames.
func IsPlaceholder(text string) bool {
	for _, f := range placeholderFrames {
		if text == f {
			return true
		}
	}
	return false
}
