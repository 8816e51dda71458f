package genai

import (
	"context"

	"github.com/thebtf/parla/pkg/models"
)

// AudioConfig carries the capture parameters forwarded to speech
// recognition.
type AudioConfig struct {
	SampleRate int
	Encoding   string
	Language   string
}

// Exchange is the immediate-path output of one conversational call:
// what the user said and what the model replied.
type Exchange struct {
	Transcription string
	Reply         string
}

// ConverseRequest bundles everything one conversational call needs.
// WebpageContext is already truncated by the prompt layer; History is
// the full role-tagged projection for the session.
type ConverseRequest struct {
	Prompt         string
	History        []models.HistoryEntry
	WebpageContext string
	Audio          []byte
}

// ConversationalAI generates replies and linguistic analyses.
// Converse is the immediate path; the Analyze methods are only called
// from background tasks and their failures must never reach a client.
type ConversationalAI interface {
	// Converse transcribes the audio and produces a conversational
	// reply in one call. Fails with ErrGeneration.
	Converse(ctx context.Context, req ConverseRequest) (*Exchange, error)

	// AnalyzeTranscript produces transcript-kind analysis fields.
	// Fails with ErrGeneration.
	AnalyzeTranscript(ctx context.Context, transcript string) (*models.AnalysisResult, error)

	// AnalyzeAudio produces audio-kind analysis fields from the raw
	// recording. Fails with ErrGeneration.
	AnalyzeAudio(ctx context.Context, audio []byte) (*models.AnalysisResult, error)
}

// SpeechToText converts audio to text. Fails with ErrTranscription.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, cfg AudioConfig) (string, error)
}

// TextToSpeech converts reply text to audio. Fails with ErrSynthesis.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// WebFetcher retrieves a webpage as a study document. Fetch fails soft:
// unreachable or unusable pages return (nil, nil), never an error the
// caller has to branch on.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (*models.WebpageDocument, error)
}
