package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/parla/pkg/models"
)

// MemoryStoreSuite exercises the in-memory Store implementation.
type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newSession(id string) *models.Session {
	now := time.Now()
	sess := &models.Session{
		ID:             id,
		Title:          "Practice",
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
		UpdatedAt:      now.Format(time.RFC3339),
		UpdatedAtEpoch: now.UnixMilli(),
	}
	s.Require().NoError(s.store.CreateSession(s.ctx, sess))
	return sess
}

// TestNextTurnIDMonotonic verifies ids start at 1 and never repeat.
func (s *MemoryStoreSuite) TestNextTurnIDMonotonic() {
	s.newSession("sess-1")

	for want := int64(1); want <= 5; want++ {
		id, err := s.store.NextTurnID(s.ctx, "sess-1")
		s.Require().NoError(err)
		s.Equal(want, id)
	}
}

// TestNextTurnIDUnknownSession verifies allocation fails for unknown ids.
func (s *MemoryStoreSuite) TestNextTurnIDUnknownSession() {
	_, err := s.store.NextTurnID(s.ctx, "nope")
	s.ErrorIs(err, ErrNotFound)
}

// TestHistoryEmptyVsUnknown distinguishes an empty session from a
// missing one.
func (s *MemoryStoreSuite) TestHistoryEmptyVsUnknown() {
	s.newSession("sess-1")

	history, err := s.store.History(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.NotNil(history)
	s.Empty(history)

	_, err = s.store.History(s.ctx, "unknown")
	s.ErrorIs(err, ErrNotFound)
}

// TestAppendAndHistory verifies the role-tagged projection order.
func (s *MemoryStoreSuite) TestAppendAndHistory() {
	s.newSession("sess-1")

	for i := int64(1); i <= 2; i++ {
		id, err := s.store.NextTurnID(s.ctx, "sess-1")
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendExchange(s.ctx, "sess-1", &models.Exchange{
			TurnID:        id,
			Transcription: "user says",
			Reply:         "model replies",
			Kind:          models.KindTranscript,
		}))
	}

	history, err := s.store.History(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().Len(history, 4)
	s.Equal(models.RoleUser, history[0].Role)
	s.Equal(models.RoleModel, history[1].Role)
	s.Equal("user says", history[0].Content)
	s.Equal("model replies", history[1].Content)
}

// TestAppendDuplicateTurn verifies a second write of the same turn id
// is rejected.
func (s *MemoryStoreSuite) TestAppendDuplicateTurn() {
	s.newSession("sess-1")

	ex := &models.Exchange{TurnID: 1, Transcription: "a", Reply: "b", Kind: models.KindTranscript}
	s.Require().NoError(s.store.AppendExchange(s.ctx, "sess-1", ex))
	s.ErrorIs(s.store.AppendExchange(s.ctx, "sess-1", ex), ErrTurnExists)
}

// TestAppendRaisesCounter verifies an externally allocated turn id
// advances the sequencer past it.
func (s *MemoryStoreSuite) TestAppendRaisesCounter() {
	s.newSession("sess-1")

	s.Require().NoError(s.store.AppendExchange(s.ctx, "sess-1", &models.Exchange{
		TurnID: 7, Transcription: "a", Reply: "b", Kind: models.KindTranscript,
	}))

	id, err := s.store.NextTurnID(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal(int64(8), id)
}

// TestDeleteReleasesEverything verifies nothing survives a delete.
func (s *MemoryStoreSuite) TestDeleteReleasesEverything() {
	s.newSession("sess-1")
	s.Require().NoError(s.store.AppendExchange(s.ctx, "sess-1", &models.Exchange{
		TurnID: 1, Transcription: "a", Reply: "b", Kind: models.KindTranscript,
	}))
	s.Require().NoError(s.store.SaveAnalysis(s.ctx, "sess-1", 1, models.EmptyAnalysis(models.KindTranscript)))

	s.Require().NoError(s.store.DeleteSession(s.ctx, "sess-1"))

	_, err := s.store.GetSession(s.ctx, "sess-1")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.History(s.ctx, "sess-1")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.Analysis(s.ctx, "sess-1", 1)
	s.ErrorIs(err, ErrNotFound)

	s.ErrorIs(s.store.DeleteSession(s.ctx, "sess-1"), ErrNotFound)
}

// TestUpdateSession verifies partial updates only touch set fields.
func (s *MemoryStoreSuite) TestUpdateSession() {
	s.newSession("sess-1")

	title := "Renamed"
	s.Require().NoError(s.store.UpdateSession(s.ctx, "sess-1", &models.SessionUpdate{Title: &title}))

	sess, err := s.store.GetSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal("Renamed", sess.Title)
	s.Empty(sess.Name)
}

// TestListFilterByName verifies the owner filter.
func (s *MemoryStoreSuite) TestListFilterByName() {
	a := s.newSession("sess-a")
	a.Name = "alice"
	s.Require().NoError(s.store.UpdateSession(s.ctx, "sess-a", &models.SessionUpdate{Name: &a.Name}))
	s.newSession("sess-b")

	all, err := s.store.ListSessions(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	filtered, err := s.store.ListSessions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal("sess-a", filtered[0].ID)
}

// TestWebpageRoundTrip verifies attach and read of the study document.
func (s *MemoryStoreSuite) TestWebpageRoundTrip() {
	s.newSession("sess-1")

	doc, err := s.store.Webpage(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Nil(doc)

	s.Require().NoError(s.store.SetWebpage(s.ctx, "sess-1", &models.WebpageDocument{
		URL: "https://example.com", Title: "Example", Content: "body text",
	}))

	doc, err = s.store.Webpage(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().NotNil(doc)
	s.Equal("Example", doc.Title)
}

// TestSaveAnalysisOverwrite verifies the latest result wins.
func (s *MemoryStoreSuite) TestSaveAnalysisOverwrite() {
	s.newSession("sess-1")

	s.Require().NoError(s.store.SaveAnalysis(s.ctx, "sess-1", 1, models.EmptyAnalysis(models.KindTranscript)))
	s.Require().NoError(s.store.SaveAnalysis(s.ctx, "sess-1", 1, &models.AnalysisResult{
		Kind:   models.KindTranscript,
		Advice: "slow down",
	}))

	res, err := s.store.Analysis(s.ctx, "sess-1", 1)
	s.Require().NoError(err)
	s.Require().NotNil(res)
	s.Equal("slow down", res.Advice)

	all, err := s.store.Analyses(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Len(all, 1)
}

// TestCloseReleasesState verifies Close drops everything without
// leaving the store in a panicking state for late writers.
func (s *MemoryStoreSuite) TestCloseReleasesState() {
	s.newSession("sess-1")
	s.Require().NoError(s.store.Close())

	_, err := s.store.GetSession(s.ctx, "sess-1")
	s.ErrorIs(err, ErrNotFound)

	// A background save racing Close degrades to ErrNotFound.
	s.ErrorIs(s.store.SaveAnalysis(s.ctx, "sess-1", 1, models.EmptyAnalysis(models.KindTranscript)), ErrNotFound)
	s.NotPanics(func() {
		_ = s.store.CreateSession(s.ctx, &models.Session{ID: "late"})
	})
}

// TestAnalysisAbsent verifies a known session with no result returns
// nil without error.
func (s *MemoryStoreSuite) TestAnalysisAbsent() {
	s.newSession("sess-1")

	res, err := s.store.Analysis(s.ctx, "sess-1", 42)
	s.Require().NoError(err)
	s.Nil(res)
}
