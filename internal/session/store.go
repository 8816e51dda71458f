package session

import (
	"context"

	"github.com/thebtf/parla/pkg/models"
)

// Store is the storage contract for sessions and everything a session
// owns: turns, history projection, webpage context and analysis results.
// Two implementations exist: the in-memory store in this package and
// the GORM-backed store in internal/db/gorm, composed by Hybrid.
//
// Deleting a session releases all owned state in one logical operation.
type Store interface {
	// CreateSession persists a new session. The caller sets the id
	// and timestamps.
	CreateSession(ctx context.Context, sess *models.Session) error

	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// ListSessions returns sessions ordered by most recent update,
	// optionally filtered by owner name.
	ListSessions(ctx context.Context, name string) ([]*models.Session, error)

	// UpdateSession applies the non-nil fields of upd.
	UpdateSession(ctx context.Context, id string, upd *models.SessionUpdate) error

	// DeleteSession removes the session and cascades to its turns,
	// history, webpage context and analysis results. Returns
	// ErrNotFound when the id is unknown.
	DeleteSession(ctx context.Context, id string) error

	// NextTurnID atomically allocates the next turn number for the
	// session, strictly increasing from 1. Numbers are never reused,
	// including across delete-and-recreate of turns.
	NextTurnID(ctx context.Context, sessionID string) (int64, error)

	// AppendExchange records one completed immediate-path turn. The
	// exchange carries the turn id allocated by NextTurnID, so the
	// stored turn number and the id returned to the client cannot
	// drift apart.
	AppendExchange(ctx context.Context, sessionID string, ex *models.Exchange) error

	// History rebuilds the role-tagged conversational context in turn
	// order. A session with no turns yields an empty, non-nil slice;
	// an unknown session yields ErrNotFound.
	History(ctx context.Context, sessionID string) ([]models.HistoryEntry, error)

	// Turns returns all recorded turns in order, with analysis results
	// attached where present.
	Turns(ctx context.Context, sessionID string) ([]*models.Turn, error)

	// SetWebpage replaces the session's attached document wholesale.
	SetWebpage(ctx context.Context, sessionID string, doc *models.WebpageDocument) error

	// Webpage returns the attached document, or nil when none is
	// attached. Unknown session yields ErrNotFound.
	Webpage(ctx context.Context, sessionID string) (*models.WebpageDocument, error)

	// SaveAnalysis stores the analysis result for (session, turn).
	// Idempotent per key: a later save overwrites.
	SaveAnalysis(ctx context.Context, sessionID string, turnID int64, res *models.AnalysisResult) error

	// Analysis returns the stored result for a turn, or nil when no
	// result has been saved for that turn id. The store only knows
	// absent vs present; "pending" is tracked by the orchestrator.
	Analysis(ctx context.Context, sessionID string, turnID int64) (*models.AnalysisResult, error)

	// Analyses returns all stored results keyed by turn id.
	Analyses(ctx context.Context, sessionID string) (map[int64]*models.AnalysisResult, error)

	// Close releases store resources.
	Close() error
}
