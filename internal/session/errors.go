// Package session provides session lifecycle management and the storage
// contracts for parla: conversation history, webpage context, analysis
// results and per-session turn sequencing.
package session

import "errors"

var (
	// ErrNotFound is returned for operations against an unknown or
	// deleted session. A deleted session id never resurrects: every
	// operation against it keeps failing with ErrNotFound.
	ErrNotFound = errors.New("session not found")

	// ErrTurnExists is returned when an exchange is appended with a
	// turn number the session has already recorded.
	ErrTurnExists = errors.New("turn number already recorded")
)
