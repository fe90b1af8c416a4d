// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the parley TUI.
package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThemeHonorsConfiguredMode(t *testing.T) {
	dark := NewTheme("dark")
	assert.True(t, dark.IsDark)

	light := NewTheme("light")
	assert.False(t, light.IsDark)
}

func TestThemeStylesAreInitialized(t *testing.T) {
	th := NewTheme("dark")

	// A zero style renders input unchanged; initialized styles carry at
	// least padding or color so they must differ from the zero value.
	assert.NotEqual(t, th.UserBubble, th.Placeholder)
	assert.True(t, th.UserBubble.GetPaddingLeft() > 0)
	assert.True(t, th.AssistantBubble.GetPaddingLeft() > 0)
	assert.True(t, th.RoleUser.GetBold())
	assert.True(t, th.RoleAssistant.GetBold())
}
