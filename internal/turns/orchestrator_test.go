package turns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/internal/mocks"
	"github.com/thebtf/parla/internal/prompts"
	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/pkg/models"
)

// OrchestratorSuite exercises the immediate and background turn paths
// over the in-memory store and scripted collaborators.
type OrchestratorSuite struct {
	suite.Suite
	manager *session.Manager
	ai      *mocks.ScriptedAI
	tts     *mocks.StaticTTS
	orch    *Orchestrator
	cancel  context.CancelFunc
	ctx     context.Context
}

func (s *OrchestratorSuite) SetupTest() {
	s.manager = session.NewManager(session.NewMemoryStore())
	s.ai = mocks.NewScriptedAI()
	s.tts = &mocks.StaticTTS{}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ctx = ctx
	s.orch = New(ctx, s.manager, s.ai, s.tts, prompts.Default(), "en-US")
}

func (s *OrchestratorSuite) TearDownTest() {
	s.cancel()
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) newSession() string {
	sess, err := s.manager.Create(s.ctx, "Practice", "", "")
	s.Require().NoError(err)
	return sess.ID
}

func (s *OrchestratorSuite) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.orch.Drain(ctx))
}

// TestTurnRoundTrip verifies one submission produces a reply, a stored
// exchange and, after the background task settles, a stored analysis,
// all under one turn id.
func (s *OrchestratorSuite) TestTurnRoundTrip() {
	sid := s.newSession()
	s.ai.QueueExchange("hello there", "hi, how are you")

	result, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)
	s.Equal(int64(1), result.Transcription.ID)
	s.Equal(int64(1), result.Response.ID)
	s.Equal("hello there", result.Transcription.Content)
	s.Equal("hi, how are you", result.Response.Content)
	s.NotEmpty(result.AudioContent)
	s.Equal(StatusProcessing, result.AnalysisStatus)

	s.drain()

	status, res, err := s.orch.Result(s.ctx, sid, 1)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, status)
	s.Require().NotNil(res)
	s.Equal(models.KindTranscript, res.Kind)

	history, err := s.manager.History(s.ctx, sid)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("hello there", history[0].Content)

	// The analysis saw the same transcript the client got back.
	s.Require().Len(s.ai.TranscriptAnalyzeCalls, 1)
	s.Equal("hello there", s.ai.TranscriptAnalyzeCalls[0])
}

// TestTurnIDsAreSequential verifies consecutive turns number 1, 2, 3.
func (s *OrchestratorSuite) TestTurnIDsAreSequential() {
	sid := s.newSession()

	for want := int64(1); want <= 3; want++ {
		result, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
		s.Require().NoError(err)
		s.Equal(want, result.Transcription.ID)
	}
	s.drain()
}

// TestEmptyAudioRejected verifies the guard runs before any upstream
// call.
func (s *OrchestratorSuite) TestEmptyAudioRejected() {
	sid := s.newSession()

	_, err := s.orch.HandleTurn(s.ctx, sid, nil, models.KindTranscript)
	s.ErrorIs(err, genai.ErrEmptyAudio)
	s.Empty(s.ai.ConverseCalls)
}

// TestConverseFailureWritesNothing verifies the all-or-nothing
// immediate path.
func (s *OrchestratorSuite) TestConverseFailureWritesNothing() {
	sid := s.newSession()
	s.ai.ConverseErr = errors.New("upstream down")

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Error(err)

	history, err := s.manager.History(s.ctx, sid)
	s.Require().NoError(err)
	s.Empty(history)
	s.Zero(s.orch.PendingCount())
}

// TestSynthesisFailureWritesNothing verifies a late immediate-path
// failure still records no partial turn.
func (s *OrchestratorSuite) TestSynthesisFailureWritesNothing() {
	sid := s.newSession()
	s.tts.Err = errors.New("voice down")

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Error(err)

	history, err := s.manager.History(s.ctx, sid)
	s.Require().NoError(err)
	s.Empty(history)

	// The next successful turn starts numbering fresh for the client.
	s.tts.Err = nil
	result, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)
	s.Positive(result.Transcription.ID)
	s.drain()
}

// TestAnalysisFailureStoresEmptyRecord verifies a failed background
// task converges to completed-with-empty instead of pending forever.
func (s *OrchestratorSuite) TestAnalysisFailureStoresEmptyRecord() {
	sid := s.newSession()
	s.ai.AnalyzeErr = errors.New("model overloaded")

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindAudio)
	s.Require().NoError(err)
	s.drain()

	status, res, err := s.orch.Result(s.ctx, sid, 1)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, status)
	s.Require().NotNil(res)
	s.True(res.Empty())
	s.Equal(models.KindAudio, res.Kind)
}

// TestAudioKindRoutesToAudioAnalysis verifies the kind selects the
// analysis path and the raw recording reaches it.
func (s *OrchestratorSuite) TestAudioKindRoutesToAudioAnalysis() {
	sid := s.newSession()

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("raw-pcm"), models.KindAudio)
	s.Require().NoError(err)
	s.drain()

	s.Require().Len(s.ai.AudioAnalyzeCalls, 1)
	s.Equal([]byte("raw-pcm"), s.ai.AudioAnalyzeCalls[0])
	s.Empty(s.ai.TranscriptAnalyzeCalls)
}

// TestInvalidKindDefaultsToTranscript verifies unknown kinds fall back.
func (s *OrchestratorSuite) TestInvalidKindDefaultsToTranscript() {
	sid := s.newSession()

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.AnalysisKind("video"))
	s.Require().NoError(err)
	s.drain()

	s.Len(s.ai.TranscriptAnalyzeCalls, 1)
	s.Empty(s.ai.AudioAnalyzeCalls)
}

// TestResultStatusTransitions verifies processing is visible while the
// task runs and unknown turns report not found.
func (s *OrchestratorSuite) TestResultStatusTransitions() {
	sid := s.newSession()
	s.ai.AnalyzeDelay = 200 * time.Millisecond

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)

	status, res, err := s.orch.Result(s.ctx, sid, 1)
	s.Require().NoError(err)
	s.Equal(StatusProcessing, status)
	s.Nil(res)

	s.drain()

	status, res, err = s.orch.Result(s.ctx, sid, 1)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, status)
	s.NotNil(res)

	status, _, err = s.orch.Result(s.ctx, sid, 99)
	s.Require().NoError(err)
	s.Equal(StatusNotFound, status)
}

// TestResultUnknownSession verifies polls on deleted sessions settle at
// not found without error.
func (s *OrchestratorSuite) TestResultUnknownSession() {
	status, res, err := s.orch.Result(s.ctx, "gone", 1)
	s.Require().NoError(err)
	s.Equal(StatusNotFound, status)
	s.Nil(res)
}

// TestWebpageContextReachesConverse verifies the attached document is
// rendered into the conversational call.
func (s *OrchestratorSuite) TestWebpageContextReachesConverse() {
	sid := s.newSession()
	s.Require().NoError(s.manager.AttachWebpage(s.ctx, sid, &models.WebpageDocument{
		URL: "https://example.com", Title: "Example", Content: "reference material",
	}))

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)
	s.drain()

	s.Require().Len(s.ai.ConverseCalls, 1)
	s.Contains(s.ai.ConverseCalls[0].WebpageContext, "reference material")
	s.NotEmpty(s.ai.ConverseCalls[0].Prompt)
}

// TestHistoryThreadsBetweenTurns verifies the second call sees the
// first exchange.
func (s *OrchestratorSuite) TestHistoryThreadsBetweenTurns() {
	sid := s.newSession()
	s.ai.QueueExchange("first question", "first answer")

	_, err := s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)
	_, err = s.orch.HandleTurn(s.ctx, sid, []byte("audio"), models.KindTranscript)
	s.Require().NoError(err)
	s.drain()

	s.Require().Len(s.ai.ConverseCalls, 2)
	s.Empty(s.ai.ConverseCalls[0].History)
	s.Require().Len(s.ai.ConverseCalls[1].History, 2)
	s.Equal("first question", s.ai.ConverseCalls[1].History[0].Content)
}
