package genai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/parla/internal/prompts"
	"github.com/thebtf/parla/pkg/models"
)

// Gateway talks JSON-over-HTTP to the speech/LLM gateway. It implements
// ConversationalAI, SpeechToText and TextToSpeech; audio payloads ride
// as base64 in the request bodies.
type Gateway struct {
	baseURL string
	apiKey  string
	library *prompts.Library
	client  *http.Client
}

// NewGateway creates a gateway client. The prompt library supplies the
// analysis instructions so hot-reloaded templates take effect without a
// restart.
func NewGateway(baseURL, apiKey string, library *prompts.Library) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		library: library,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *Gateway) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s returned %d: %s", path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type converseRequest struct {
	Prompt         string                `json:"prompt"`
	History        []models.HistoryEntry `json:"history"`
	WebpageContext string                `json:"webpage_context,omitempty"`
	Audio          []byte                `json:"audio"`
}

type converseResponse struct {
	Transcription string `json:"transcription"`
	Reply         string `json:"reply"`
}

// Converse implements ConversationalAI.
func (g *Gateway) Converse(ctx context.Context, req ConverseRequest) (*Exchange, error) {
	var resp converseResponse
	err := g.post(ctx, "/v1/converse", converseRequest{
		Prompt:         req.Prompt,
		History:        req.History,
		WebpageContext: req.WebpageContext,
		Audio:          req.Audio,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return &Exchange{Transcription: resp.Transcription, Reply: resp.Reply}, nil
}

type analyzeRequest struct {
	Kind       models.AnalysisKind `json:"kind"`
	Prompt     string              `json:"prompt"`
	Transcript string              `json:"transcript,omitempty"`
	Audio      []byte              `json:"audio,omitempty"`
}

func (g *Gateway) analyze(ctx context.Context, req analyzeRequest) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	if err := g.post(ctx, "/v1/analyze", req, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	res.Kind = req.Kind
	return &res, nil
}

// AnalyzeTranscript implements ConversationalAI.
func (g *Gateway) AnalyzeTranscript(ctx context.Context, transcript string) (*models.AnalysisResult, error) {
	return g.analyze(ctx, analyzeRequest{
		Kind:       models.KindTranscript,
		Prompt:     g.library.Analysis(models.KindTranscript),
		Transcript: transcript,
	})
}

// AnalyzeAudio implements ConversationalAI.
func (g *Gateway) AnalyzeAudio(ctx context.Context, audio []byte) (*models.AnalysisResult, error) {
	return g.analyze(ctx, analyzeRequest{
		Kind:   models.KindAudio,
		Prompt: g.library.Analysis(models.KindAudio),
		Audio:  audio,
	})
}

type transcribeRequest struct {
	Audio      []byte `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// Transcribe implements SpeechToText.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, cfg AudioConfig) (string, error) {
	var resp struct {
		Transcript string `json:"transcript"`
	}
	err := g.post(ctx, "/v1/transcribe", transcribeRequest{
		Audio:      audio,
		SampleRate: cfg.SampleRate,
		Encoding:   cfg.Encoding,
		Language:   cfg.Language,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	return resp.Transcript, nil
}

// Synthesize implements TextToSpeech.
func (g *Gateway) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	var resp struct {
		Audio []byte `json:"audio"`
	}
	err := g.post(ctx, "/v1/synthesize", map[string]string{
		"text":     text,
		"language": language,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return resp.Audio, nil
}
