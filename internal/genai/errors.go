// Package genai defines the contracts for the external speech and
// generative-AI collaborators. The coordination core only ever sees
// these interfaces; concrete API wrappers live behind them.
package genai

import "errors"

// Upstream failure classes. Implementations wrap their transport errors
// with the matching sentinel so callers can branch with errors.Is.
var (
	// ErrTranscription is a speech-to-text failure.
	ErrTranscription = errors.New("transcription failed")

	// ErrGeneration is a conversational or analysis generation failure.
	ErrGeneration = errors.New("generation failed")

	// ErrSynthesis is a text-to-speech failure.
	ErrSynthesis = errors.New("speech synthesis failed")

	// ErrEmptyAudio is returned before any upstream call when the
	// submitted audio payload is empty.
	ErrEmptyAudio = errors.New("empty audio data")
)
