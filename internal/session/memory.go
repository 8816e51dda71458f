package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thebtf/parla/pkg/models"
)

// memorySession bundles everything one session owns in memory.
type memorySession struct {
	sess     *models.Session
	counter  int64
	turns    []*models.Turn
	webpage  *models.WebpageDocument
	analyses map[int64]*models.AnalysisResult
}

// MemoryStore is the in-memory Store implementation. It is the fallback
// tier of the hybrid store and the primary store when no database is
// configured. All state is process-local and lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// CreateSession implements Store. Creating an id that already exists
// overwrites nothing and succeeds, so the hybrid store can mirror
// durable sessions into memory idempotently.
func (m *MemoryStore) CreateSession(ctx context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return nil
	}
	cp := *sess
	m.sessions[sess.ID] = &memorySession{
		sess:     &cp,
		analyses: make(map[int64]*models.AnalysisResult),
	}
	return nil
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ms.sess
	return &cp, nil
}

// ListSessions implements Store.
func (m *MemoryStore) ListSessions(ctx context.Context, name string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		if name != "" && ms.sess.Name != name {
			continue
		}
		cp := *ms.sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAtEpoch > out[j].UpdatedAtEpoch
	})
	return out, nil
}

// UpdateSession implements Store.
func (m *MemoryStore) UpdateSession(ctx context.Context, id string, upd *models.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Title != nil {
		ms.sess.Title = *upd.Title
	}
	if upd.Name != nil {
		ms.sess.Name = *upd.Name
	}
	if upd.URL != nil {
		ms.sess.URL = *upd.URL
	}
	touch(ms.sess)
	return nil
}

// DeleteSession implements Store. The session and everything it owns
// are released together; the id stays unknown afterwards.
func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// NextTurnID implements Store. A single locked increment: two in-flight
// requests on the same session can never be issued the same number.
func (m *MemoryStore) NextTurnID(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return 0, ErrNotFound
	}
	ms.counter++
	return ms.counter, nil
}

// AppendExchange implements Store.
func (m *MemoryStore) AppendExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	for _, t := range ms.turns {
		if t.TurnNumber == ex.TurnID {
			return ErrTurnExists
		}
	}
	now := time.Now()
	ms.turns = append(ms.turns, &models.Turn{
		SessionID:      sessionID,
		TurnNumber:     ex.TurnID,
		Transcription:  ex.Transcription,
		Reply:          ex.Reply,
		Kind:           ex.Kind,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	})
	sort.Slice(ms.turns, func(i, j int) bool {
		return ms.turns[i].TurnNumber < ms.turns[j].TurnNumber
	})
	// Exchanges arrive with ids allocated by whichever tier is primary;
	// following them keeps this tier's counter monotonic after a flip.
	if ex.TurnID > ms.counter {
		ms.counter = ex.TurnID
	}
	touch(ms.sess)
	return nil
}

// History implements Store.
func (m *MemoryStore) History(ctx context.Context, sessionID string) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	entries := make([]models.HistoryEntry, 0, len(ms.turns)*2)
	for _, t := range ms.turns {
		entries = append(entries,
			models.HistoryEntry{Role: models.RoleUser, Content: t.Transcription},
			models.HistoryEntry{Role: models.RoleModel, Content: t.Reply},
		)
	}
	return entries, nil
}

// Turns implements Store.
func (m *MemoryStore) Turns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*models.Turn, 0, len(ms.turns))
	for _, t := range ms.turns {
		cp := *t
		if res, ok := ms.analyses[t.TurnNumber]; ok {
			rc := *res
			cp.Analysis = &rc
			cp.Analyzed = true
		}
		out = append(out, &cp)
	}
	return out, nil
}

// SetWebpage implements Store.
func (m *MemoryStore) SetWebpage(ctx context.Context, sessionID string, doc *models.WebpageDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	cp := *doc
	ms.webpage = &cp
	ms.sess.URL = doc.URL
	touch(ms.sess)
	return nil
}

// Webpage implements Store.
func (m *MemoryStore) Webpage(ctx context.Context, sessionID string) (*models.WebpageDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if ms.webpage == nil {
		return nil, nil
	}
	cp := *ms.webpage
	return &cp, nil
}

// SaveAnalysis implements Store. Saving the same turn id again
// overwrites the previous result.
func (m *MemoryStore) SaveAnalysis(ctx context.Context, sessionID string, turnID int64, res *models.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	cp := *res
	ms.analyses[turnID] = &cp
	for _, t := range ms.turns {
		if t.TurnNumber == turnID {
			t.Analyzed = true
			break
		}
	}
	return nil
}

// Analysis implements Store.
func (m *MemoryStore) Analysis(ctx context.Context, sessionID string, turnID int64) (*models.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	res, ok := ms.analyses[turnID]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

// Analyses implements Store.
func (m *MemoryStore) Analyses(ctx context.Context, sessionID string) (map[int64]*models.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[int64]*models.AnalysisResult, len(ms.analyses))
	for id, res := range ms.analyses {
		cp := *res
		out[id] = &cp
	}
	return out, nil
}

// Close implements Store. All state is released; the store stays
// usable so late background saves degrade to ErrNotFound instead of
// panicking on a released map.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*memorySession)
	return nil
}

func touch(sess *models.Session) {
	now := time.Now()
	sess.UpdatedAt = now.Format(time.RFC3339)
	sess.UpdatedAtEpoch = now.UnixMilli()
}
