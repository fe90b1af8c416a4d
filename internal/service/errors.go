// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service defines the contracts between the chat session engine and
// the backend it talks to.
package service

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ServiceError is a comparable error for backend failures.
// Use errors.Is to test against the sentinels below.
type ServiceError struct {
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return e.Message
}

// Is implements errors.Is support.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ErrChatNotFound is returned when a chat id is unknown to the backend.
var ErrChatNotFound = &ServiceError{Message: "chat not found"}

// ErrLogNotFound is returned when a message id is unknown to the backend.
var ErrLogNotFound = &ServiceError{Message: "log not found"}

// ErrClosed is returned when the transport has been shut down.
var ErrClosed = &ServiceError{Message: "service closed"}
