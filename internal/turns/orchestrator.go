// Package turns drives one voice-interaction turn: the synchronous
// transcribe-and-reply path returned to the caller, and the background
// analysis path that converges into the same turn id.
package turns

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/internal/prompts"
	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/pkg/models"
)

// Status is the client-visible state of one turn's analysis.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusProcessing Status = "processing"
	StatusNotFound   Status = "not_found"
)

// Segment is one identified piece of the turn payload.
type Segment struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// TurnResult is the immediate-path payload. Transcription and Response
// carry the same turn id: the background analysis for this turn will be
// stored under that id and nothing else.
type TurnResult struct {
	Transcription  Segment `json:"transcription"`
	Response       Segment `json:"response"`
	AudioContent   []byte  `json:"audio_content"`
	AnalysisStatus Status  `json:"analysis_status"`
}

// Orchestrator coordinates the immediate and background paths over the
// session manager and the AI collaborators. Background tasks run on the
// orchestrator's own context so they survive the request that scheduled
// them, and are drained on shutdown.
type Orchestrator struct {
	sessions *session.Manager
	ai       genai.ConversationalAI
	tts      genai.TextToSpeech
	library  *prompts.Library
	language string

	tracker *Tracker
	metrics *Metrics

	ctx   context.Context
	group *errgroup.Group
}

// New creates an orchestrator. ctx bounds the lifetime of background
// analyses; cancel it only after Drain.
func New(ctx context.Context, sessions *session.Manager, ai genai.ConversationalAI, tts genai.TextToSpeech, library *prompts.Library, language string) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		ai:       ai,
		tts:      tts,
		library:  library,
		language: language,
		tracker:  NewTracker(),
		metrics:  NewMetrics(),
		ctx:      ctx,
		group:    &errgroup.Group{},
	}
}

// PendingCount returns the number of unresolved background analyses.
func (o *Orchestrator) PendingCount() int {
	return o.tracker.Count()
}

// ForgetSession drops pending state for a deleted session.
func (o *Orchestrator) ForgetSession(sessionID string) {
	o.tracker.ForgetSession(sessionID)
}

// HandleTurn runs the immediate path for one audio submission and
// schedules the background analysis before returning.
//
// The immediate path is all-or-nothing: every fallible external call
// (conversation, speech synthesis) happens before anything is written,
// so a failed request records no partial turn. The turn id is allocated
// exactly once and threads through the returned payload, the stored
// exchange and the scheduled analysis.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID string, audio []byte, kind models.AnalysisKind) (*TurnResult, error) {
	if len(audio) == 0 {
		o.metrics.recordTurn(ctx, false)
		return nil, genai.ErrEmptyAudio
	}
	if !kind.Valid() {
		kind = models.KindTranscript
	}

	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		o.metrics.recordTurn(ctx, false)
		return nil, fmt.Errorf("read history: %w", err)
	}
	webpage, err := o.sessions.Webpage(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		o.metrics.recordTurn(ctx, false)
		return nil, fmt.Errorf("read webpage context: %w", err)
	}

	exchange, err := o.ai.Converse(ctx, genai.ConverseRequest{
		Prompt:         o.library.Conversation(),
		History:        history,
		WebpageContext: prompts.WebpageContext(webpage),
		Audio:          audio,
	})
	if err != nil {
		o.metrics.recordTurn(ctx, false)
		return nil, fmt.Errorf("converse: %w", err)
	}

	replyAudio, err := o.tts.Synthesize(ctx, exchange.Reply, o.language)
	if err != nil {
		o.metrics.recordTurn(ctx, false)
		return nil, fmt.Errorf("synthesize reply: %w", err)
	}

	turnID := o.sessions.NextTurnID(ctx, sessionID)

	if err := o.sessions.AppendExchange(ctx, sessionID, &models.Exchange{
		TurnID:        turnID,
		Transcription: exchange.Transcription,
		Reply:         exchange.Reply,
		Kind:          kind,
	}); err != nil {
		o.metrics.recordTurn(ctx, false)
		return nil, err
	}

	o.schedule(sessionID, turnID, kind, exchange.Transcription, audio)

	o.metrics.recordTurn(ctx, true)
	return &TurnResult{
		Transcription:  Segment{ID: turnID, Content: exchange.Transcription},
		Response:       Segment{ID: turnID, Content: exchange.Reply},
		AudioContent:   replyAudio,
		AnalysisStatus: StatusProcessing,
	}, nil
}

// schedule marks the turn pending and fires the background task. The
// pending mark happens before the goroutine starts so a poll arriving
// between return and task start still sees StatusProcessing.
func (o *Orchestrator) schedule(sessionID string, turnID int64, kind models.AnalysisKind, transcript string, audio []byte) {
	o.tracker.Mark(sessionID, turnID)
	o.group.Go(func() error {
		o.runAnalysis(sessionID, turnID, kind, transcript, audio)
		return nil
	})
}

// runAnalysis is the background path. It never propagates an error: any
// failure degrades to a stored empty record so a poll settles at
// "completed, empty" instead of hanging pending forever.
func (o *Orchestrator) runAnalysis(sessionID string, turnID int64, kind models.AnalysisKind, transcript string, audio []byte) {
	defer o.tracker.Resolve(sessionID, turnID)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).
				Str("sessionId", sessionID).Int64("turnId", turnID).
				Msg("Background analysis panicked")
			o.saveResult(sessionID, turnID, models.EmptyAnalysis(kind), "panic")
		}
	}()

	var (
		res *models.AnalysisResult
		err error
	)
	if kind == models.KindAudio {
		res, err = o.ai.AnalyzeAudio(o.ctx, audio)
	} else {
		res, err = o.ai.AnalyzeTranscript(o.ctx, transcript)
	}
	if err != nil {
		log.Warn().Err(err).
			Str("sessionId", sessionID).Int64("turnId", turnID).
			Msg("Analysis failed, storing empty result")
		o.saveResult(sessionID, turnID, models.EmptyAnalysis(kind), "failed")
		return
	}
	res.Kind = kind
	o.saveResult(sessionID, turnID, res, "ok")
}

func (o *Orchestrator) saveResult(sessionID string, turnID int64, res *models.AnalysisResult, outcome string) {
	if err := o.sessions.SaveAnalysis(o.ctx, sessionID, turnID, res); err != nil {
		// Session may have been deleted while the task ran; anything
		// else is a storage failure the hybrid layer already logged.
		log.Warn().Err(err).
			Str("sessionId", sessionID).Int64("turnId", turnID).
			Msg("Failed to store analysis result")
		o.metrics.recordAnalysis(o.ctx, "lost")
		return
	}
	o.metrics.recordAnalysis(o.ctx, outcome)
}

// Result reports the analysis state for one turn. Completed beats
// Processing: once a result is stored the pending mark is irrelevant.
func (o *Orchestrator) Result(ctx context.Context, sessionID string, turnID int64) (Status, *models.AnalysisResult, error) {
	res, err := o.sessions.Analysis(ctx, sessionID, turnID)
	if errors.Is(err, session.ErrNotFound) {
		return StatusNotFound, nil, nil
	}
	if err != nil {
		return StatusNotFound, nil, err
	}
	if res != nil {
		return StatusCompleted, res, nil
	}
	if o.tracker.Pending(sessionID, turnID) {
		return StatusProcessing, nil, nil
	}
	return StatusNotFound, nil, nil
}

// Drain waits for outstanding background analyses, bounded by ctx.
// Called on shutdown; the documented choice is to drain rather than
// abandon in-flight work.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = o.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain background analyses: %w", ctx.Err())
	}
}
