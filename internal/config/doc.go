// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// Configuration is TOML at ~/.parley/config.toml, with built-in defaults,
// PARLEY_* environment variable overrides, and validation. A Watcher reloads
// the file on change so edits apply without restarting.
//
// # Example
//
//	version = "1"
//
//	[backend]
//	mode = "local"
//	ollama_url = "http://127.0.0.1:11434"
//	model = "qwen2.5:7b"
//
//	[chat]
//	flush_interval_ms = 200
//	page_size = 20
//
//	[ui]
//	theme = "dark"
//	markdown = true
//
//	[prompts]
//	concise = "Answer briefly."
package config
