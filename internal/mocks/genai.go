// Package mocks provides scripted implementations of the genai
// collaborator contracts for tests and local development.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/pkg/models"
)

// ScriptedAI implements genai.ConversationalAI with queued responses.
// Converse pops exchanges in order, falling back to the Fallback
// exchange when the queue is empty; the Analyze methods return the
// configured result or error. All calls are recorded for verification.
type ScriptedAI struct {
	mu sync.Mutex

	exchanges []*genai.Exchange
	Fallback  genai.Exchange

	ConverseErr  error
	AnalyzeErr   error
	Analysis     *models.AnalysisResult
	AnalyzeDelay time.Duration

	ConverseCalls          []genai.ConverseRequest
	TranscriptAnalyzeCalls []string
	AudioAnalyzeCalls      [][]byte
}

// NewScriptedAI creates a ScriptedAI with a plain fallback exchange.
func NewScriptedAI() *ScriptedAI {
	return &ScriptedAI{
		Fallback: genai.Exchange{
			Transcription: "scripted transcription",
			Reply:         "scripted reply",
		},
	}
}

// QueueExchange appends a scripted Converse response.
func (s *ScriptedAI) QueueExchange(transcription, reply string) *ScriptedAI {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, &genai.Exchange{
		Transcription: transcription,
		Reply:         reply,
	})
	return s
}

// Converse implements genai.ConversationalAI.
func (s *ScriptedAI) Converse(ctx context.Context, req genai.ConverseRequest) (*genai.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ConverseCalls = append(s.ConverseCalls, req)
	if s.ConverseErr != nil {
		return nil, s.ConverseErr
	}
	if len(s.exchanges) > 0 {
		ex := s.exchanges[0]
		s.exchanges = s.exchanges[1:]
		return ex, nil
	}
	ex := s.Fallback
	return &ex, nil
}

// AnalyzeTranscript implements genai.ConversationalAI.
func (s *ScriptedAI) AnalyzeTranscript(ctx context.Context, transcript string) (*models.AnalysisResult, error) {
	s.mu.Lock()
	s.TranscriptAnalyzeCalls = append(s.TranscriptAnalyzeCalls, transcript)
	delay, err, res := s.AnalyzeDelay, s.AnalyzeErr, s.Analysis
	s.mu.Unlock()

	return s.analysisResult(ctx, models.KindTranscript, delay, err, res)
}

// AnalyzeAudio implements genai.ConversationalAI.
func (s *ScriptedAI) AnalyzeAudio(ctx context.Context, audio []byte) (*models.AnalysisResult, error) {
	s.mu.Lock()
	s.AudioAnalyzeCalls = append(s.AudioAnalyzeCalls, audio)
	delay, err, res := s.AnalyzeDelay, s.AnalyzeErr, s.Analysis
	s.mu.Unlock()

	return s.analysisResult(ctx, models.KindAudio, delay, err, res)
}

func (s *ScriptedAI) analysisResult(ctx context.Context, kind models.AnalysisKind, delay time.Duration, err error, res *models.AnalysisResult) (*models.AnalysisResult, error) {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return models.EmptyAnalysis(kind), nil
	}
	cp := *res
	cp.Kind = kind
	return &cp, nil
}

// StaticTTS implements genai.TextToSpeech with a fixed payload.
type StaticTTS struct {
	mu    sync.Mutex
	Audio []byte
	Err   error
	Calls []string
}

// Synthesize implements genai.TextToSpeech.
func (t *StaticTTS) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, text)
	if t.Err != nil {
		return nil, t.Err
	}
	if t.Audio == nil {
		return []byte("synthesized:" + text), nil
	}
	return t.Audio, nil
}

// StaticSTT implements genai.SpeechToText with a fixed transcript.
type StaticSTT struct {
	Transcript string
	Err        error
}

// Transcribe implements genai.SpeechToText.
func (s *StaticSTT) Transcribe(ctx context.Context, audio []byte, cfg genai.AudioConfig) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Transcript, nil
}

// StubFetcher implements genai.WebFetcher with a fixed document.
// A nil Doc reproduces the soft-fail contract.
type StubFetcher struct {
	Doc   *models.WebpageDocument
	Calls []string
}

// Fetch implements genai.WebFetcher.
func (f *StubFetcher) Fetch(ctx context.Context, url string) (*models.WebpageDocument, error) {
	f.Calls = append(f.Calls, url)
	if f.Doc == nil {
		return nil, nil
	}
	cp := *f.Doc
	cp.URL = url
	return &cp, nil
}
