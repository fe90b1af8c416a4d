// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across parley.
package util

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the case-folded form of s. Full Unicode folding, so
// "STRASSE" matches "straße" where strings.ToLower does not.
// A fresh Caser per call: casers carry state and are not safe to share
// across goroutines.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// FoldContains reports whether s contains substr under case folding.
func FoldContains(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(Fold(s), Fold(substr))
}
