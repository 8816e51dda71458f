package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/parla/pkg/models"
)

// Hybrid composes the durable store with an in-memory fallback.
//
// Policy: while healthy, every mutation is applied to the durable tier
// and mirrored into memory so the fallback stays warm; reads are served
// from the durable tier. The first durable failure that is not a plain
// ErrNotFound flips a sticky degraded flag, and all traffic (not just
// the failed call) routes to memory until the process restarts. The
// flag never clears at runtime and is surfaced through Degraded for
// the health endpoint.
type Hybrid struct {
	durable  Store
	memory   *MemoryStore
	degraded atomic.Bool
}

// NewHybrid creates a hybrid store over a durable primary.
func NewHybrid(durable Store) *Hybrid {
	return &Hybrid{
		durable: durable,
		memory:  NewMemoryStore(),
	}
}

// Degraded reports whether the durable tier has been abandoned.
func (h *Hybrid) Degraded() bool {
	return h.degraded.Load()
}

// trip flips the sticky flag. Only the first caller logs.
func (h *Hybrid) trip(op string, err error) {
	if h.degraded.CompareAndSwap(false, true) {
		log.Warn().Err(err).Str("op", op).
			Msg("Durable store failed, falling back to memory for the remainder of the process")
	}
}

// infra reports whether err is an infrastructure failure rather than a
// domain outcome. ErrNotFound and ErrTurnExists must propagate to the
// caller without flipping the flag. Context cancellation means the
// caller went away, not that storage is down, so it must not flip the
// flag either.
func infra(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTurnExists) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// mirror copies a durable session's metadata into the memory tier so a
// later flip does not orphan it. Best effort.
func (h *Hybrid) mirror(ctx context.Context, sessionID string) {
	if _, err := h.memory.GetSession(ctx, sessionID); err == nil {
		return
	}
	sess, err := h.durable.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return
	}
	_ = h.memory.CreateSession(ctx, sess)
}

// CreateSession implements Store. When the durable tier fails the
// session still comes into existence, memory-only, and the caller gets
// a usable id. That is the degraded mode the lifecycle contract
// requires.
func (h *Hybrid) CreateSession(ctx context.Context, sess *models.Session) error {
	if err := h.memory.CreateSession(ctx, sess); err != nil {
		return err
	}
	if h.degraded.Load() {
		return nil
	}
	if err := h.durable.CreateSession(ctx, sess); infra(err) {
		h.trip("create session", err)
	}
	return nil
}

// GetSession implements Store.
func (h *Hybrid) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if !h.degraded.Load() {
		sess, err := h.durable.GetSession(ctx, id)
		if !infra(err) {
			return sess, err
		}
		h.trip("get session", err)
	}
	return h.memory.GetSession(ctx, id)
}

// ListSessions implements Store.
func (h *Hybrid) ListSessions(ctx context.Context, name string) ([]*models.Session, error) {
	if !h.degraded.Load() {
		sessions, err := h.durable.ListSessions(ctx, name)
		if !infra(err) {
			return sessions, err
		}
		h.trip("list sessions", err)
	}
	return h.memory.ListSessions(ctx, name)
}

// UpdateSession implements Store.
func (h *Hybrid) UpdateSession(ctx context.Context, id string, upd *models.SessionUpdate) error {
	if h.degraded.Load() {
		return h.memory.UpdateSession(ctx, id, upd)
	}
	if err := h.durable.UpdateSession(ctx, id, upd); err != nil {
		if !infra(err) {
			return err
		}
		h.trip("update session", err)
		return h.memory.UpdateSession(ctx, id, upd)
	}
	h.mirror(ctx, id)
	_ = h.memory.UpdateSession(ctx, id, upd)
	return nil
}

// DeleteSession implements Store. Memory is cleared unconditionally so
// a durable-only failure cannot leave a ghost copy behind.
func (h *Hybrid) DeleteSession(ctx context.Context, id string) error {
	memErr := h.memory.DeleteSession(ctx, id)
	if h.degraded.Load() {
		return memErr
	}
	if err := h.durable.DeleteSession(ctx, id); err != nil {
		if !infra(err) {
			return err
		}
		h.trip("delete session", err)
		return memErr
	}
	return nil
}

// NextTurnID implements Store.
func (h *Hybrid) NextTurnID(ctx context.Context, sessionID string) (int64, error) {
	if h.degraded.Load() {
		return h.memory.NextTurnID(ctx, sessionID)
	}
	id, err := h.durable.NextTurnID(ctx, sessionID)
	if !infra(err) {
		return id, err
	}
	h.trip("next turn id", err)
	return h.memory.NextTurnID(ctx, sessionID)
}

// AppendExchange implements Store.
func (h *Hybrid) AppendExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	if h.degraded.Load() {
		return h.memory.AppendExchange(ctx, sessionID, ex)
	}
	if err := h.durable.AppendExchange(ctx, sessionID, ex); err != nil {
		if !infra(err) {
			return err
		}
		h.trip("append exchange", err)
		return h.memory.AppendExchange(ctx, sessionID, ex)
	}
	h.mirror(ctx, sessionID)
	_ = h.memory.AppendExchange(ctx, sessionID, ex)
	return nil
}

// History implements Store.
func (h *Hybrid) History(ctx context.Context, sessionID string) ([]models.HistoryEntry, error) {
	if !h.degraded.Load() {
		entries, err := h.durable.History(ctx, sessionID)
		if !infra(err) {
			return entries, err
		}
		h.trip("read history", err)
	}
	return h.memory.History(ctx, sessionID)
}

// Turns implements Store.
func (h *Hybrid) Turns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	if !h.degraded.Load() {
		turns, err := h.durable.Turns(ctx, sessionID)
		if !infra(err) {
			return turns, err
		}
		h.trip("read turns", err)
	}
	return h.memory.Turns(ctx, sessionID)
}

// SetWebpage implements Store.
func (h *Hybrid) SetWebpage(ctx context.Context, sessionID string, doc *models.WebpageDocument) error {
	if h.degraded.Load() {
		return h.memory.SetWebpage(ctx, sessionID, doc)
	}
	if err := h.durable.SetWebpage(ctx, sessionID, doc); err != nil {
		if !infra(err) {
			return err
		}
		h.trip("set webpage", err)
		return h.memory.SetWebpage(ctx, sessionID, doc)
	}
	h.mirror(ctx, sessionID)
	_ = h.memory.SetWebpage(ctx, sessionID, doc)
	return nil
}

// Webpage implements Store.
func (h *Hybrid) Webpage(ctx context.Context, sessionID string) (*models.WebpageDocument, error) {
	if !h.degraded.Load() {
		doc, err := h.durable.Webpage(ctx, sessionID)
		if !infra(err) {
			return doc, err
		}
		h.trip("read webpage", err)
	}
	return h.memory.Webpage(ctx, sessionID)
}

// SaveAnalysis implements Store.
func (h *Hybrid) SaveAnalysis(ctx context.Context, sessionID string, turnID int64, res *models.AnalysisResult) error {
	if h.degraded.Load() {
		return h.memory.SaveAnalysis(ctx, sessionID, turnID, res)
	}
	if err := h.durable.SaveAnalysis(ctx, sessionID, turnID, res); err != nil {
		if !infra(err) {
			return err
		}
		h.trip("save analysis", err)
		return h.memory.SaveAnalysis(ctx, sessionID, turnID, res)
	}
	h.mirror(ctx, sessionID)
	_ = h.memory.SaveAnalysis(ctx, sessionID, turnID, res)
	return nil
}

// Analysis implements Store.
func (h *Hybrid) Analysis(ctx context.Context, sessionID string, turnID int64) (*models.AnalysisResult, error) {
	if !h.degraded.Load() {
		res, err := h.durable.Analysis(ctx, sessionID, turnID)
		if !infra(err) {
			return res, err
		}
		h.trip("read analysis", err)
	}
	return h.memory.Analysis(ctx, sessionID, turnID)
}

// Analyses implements Store.
func (h *Hybrid) Analyses(ctx context.Context, sessionID string) (map[int64]*models.AnalysisResult, error) {
	if !h.degraded.Load() {
		all, err := h.durable.Analyses(ctx, sessionID)
		if !infra(err) {
			return all, err
		}
		h.trip("read analyses", err)
	}
	return h.memory.Analyses(ctx, sessionID)
}

// Close implements Store.
func (h *Hybrid) Close() error {
	err := h.durable.Close()
	_ = h.memory.Close()
	return err
}
