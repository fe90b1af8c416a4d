// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across parley.
//
// This package contains common helper functions used throughout the application
// for string manipulation, case folding, type conversion, and file operations.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth: Display-width truncation for terminal columns
//   - CollapseNewlines: One-line previews of multi-line content
//   - FoldContains: Unicode case-insensitive substring matching
//
// Type Conversion:
//   - FloatToString: Float formatting for cost display
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Truncate long strings safely for display
//	display := util.TruncateRunes(longText, 50)
//
//	// Match search queries against chat content
//	ok := util.FoldContains(message, query)
//
//	// Write files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0644)
package util
