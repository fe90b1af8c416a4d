// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry tracks parley's running generation cost.
//
// The Tracker accumulates cost deltas per chat and per day and persists them
// as JSON under the parley data directory. It plugs into the session engine
// as its cost sink, receiving a delta every time a completed reply refreshes
// the conversation metadata.
package telemetry
