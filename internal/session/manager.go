package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/parla/pkg/models"
)

// Manager owns session lifecycle on top of a Store. It is constructed
// once at startup and injected into the orchestrator and the HTTP
// service; there are no package-level singletons.
type Manager struct {
	store Store
}

// NewManager creates a session manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create allocates a new session with an opaque unique id.
func (m *Manager) Create(ctx context.Context, title, name, url string) (*models.Session, error) {
	if title == "" {
		title = "New Session"
	}
	now := time.Now()
	sess := &models.Session{
		ID:             uuid.NewString(),
		Name:           name,
		Title:          title,
		URL:            url,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
		UpdatedAt:      now.Format(time.RFC3339),
		UpdatedAtEpoch: now.UnixMilli(),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Debug().Str("sessionId", sess.ID).Msg("Created session")
	return sess, nil
}

// Get returns the session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// List returns sessions, newest update first, optionally filtered by
// owner name.
func (m *Manager) List(ctx context.Context, name string) ([]*models.Session, error) {
	return m.store.ListSessions(ctx, name)
}

// Update applies the non-nil fields of upd to the session.
func (m *Manager) Update(ctx context.Context, id string, upd *models.SessionUpdate) error {
	return m.store.UpdateSession(ctx, id, upd)
}

// Delete removes the session and everything it owns. Deleting an
// unknown or already-deleted id is a no-op success so client cleanup
// can retry freely; the miss is logged, not returned.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.store.DeleteSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("sessionId", id).Msg("Delete of unknown session, treating as success")
		return nil
	}
	return err
}

// NextTurnID allocates the next turn number for the session. For an
// unknown session it returns 1 instead of failing: the id is derivable
// from the stored turn count once the session reappears in durable
// storage, and failing the whole turn over it would be worse for the
// caller than the lenient default.
func (m *Manager) NextTurnID(ctx context.Context, sessionID string) int64 {
	id, err := m.store.NextTurnID(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).
			Msg("Turn id allocation failed, using fallback")
		return 1
	}
	return id
}

// AppendExchange records one completed turn.
func (m *Manager) AppendExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	if err := m.store.AppendExchange(ctx, sessionID, ex); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	log.Debug().Str("sessionId", sessionID).Int64("turnId", ex.TurnID).
		Msg("Recorded exchange")
	return nil
}

// History returns the conversational context for the next AI call.
func (m *Manager) History(ctx context.Context, sessionID string) ([]models.HistoryEntry, error) {
	return m.store.History(ctx, sessionID)
}

// Turns returns all recorded turns with attached analyses.
func (m *Manager) Turns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	return m.store.Turns(ctx, sessionID)
}

// AttachWebpage replaces the session's study document.
func (m *Manager) AttachWebpage(ctx context.Context, sessionID string, doc *models.WebpageDocument) error {
	if err := m.store.SetWebpage(ctx, sessionID, doc); err != nil {
		return fmt.Errorf("attach webpage: %w", err)
	}
	log.Debug().Str("sessionId", sessionID).Str("url", doc.URL).Msg("Attached webpage")
	return nil
}

// Webpage returns the attached document, nil when none.
func (m *Manager) Webpage(ctx context.Context, sessionID string) (*models.WebpageDocument, error) {
	return m.store.Webpage(ctx, sessionID)
}

// SaveAnalysis stores the result for (session, turn).
func (m *Manager) SaveAnalysis(ctx context.Context, sessionID string, turnID int64, res *models.AnalysisResult) error {
	return m.store.SaveAnalysis(ctx, sessionID, turnID, res)
}

// Analysis returns the stored result for a turn, nil when absent.
func (m *Manager) Analysis(ctx context.Context, sessionID string, turnID int64) (*models.AnalysisResult, error) {
	return m.store.Analysis(ctx, sessionID, turnID)
}

// Analyses returns all stored results keyed by turn id.
func (m *Manager) Analyses(ctx context.Context, sessionID string) (map[int64]*models.AnalysisResult, error) {
	return m.store.Analyses(ctx, sessionID)
}
