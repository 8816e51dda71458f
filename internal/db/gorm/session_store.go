package gorm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/pkg/models"
)

// SessionStore implements session.Store against the database. It is the
// durable tier behind session.Hybrid.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a session store over an opened Store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// CreateSession implements session.Store.
func (s *SessionStore) CreateSession(ctx context.Context, sess *models.Session) error {
	row := &Session{
		ID:             sess.ID,
		Name:           nullString(sess.Name),
		Title:          sess.Title,
		URL:            nullString(sess.URL),
		CreatedAt:      sess.CreatedAt,
		CreatedAtEpoch: sess.CreatedAtEpoch,
		UpdatedAt:      sess.UpdatedAt,
		UpdatedAtEpoch: sess.UpdatedAtEpoch,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// GetSession implements session.Store.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var row Session
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&row), nil
}

// ListSessions implements session.Store.
func (s *SessionStore) ListSessions(ctx context.Context, name string) ([]*models.Session, error) {
	q := s.db.WithContext(ctx).Model(&Session{}).Order("updated_at_epoch DESC")
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var rows []Session
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Session, len(rows))
	for i := range rows {
		out[i] = toModelSession(&rows[i])
	}
	return out, nil
}

// UpdateSession implements session.Store.
func (s *SessionStore) UpdateSession(ctx context.Context, id string, upd *models.SessionUpdate) error {
	values := map[string]interface{}{}
	if upd.Title != nil {
		values["title"] = *upd.Title
	}
	if upd.Name != nil {
		values["name"] = nullString(*upd.Name)
	}
	if upd.URL != nil {
		values["url"] = nullString(*upd.URL)
	}
	if len(values) == 0 {
		// Still verify the session exists.
		_, err := s.GetSession(ctx, id)
		return err
	}
	now := time.Now()
	values["updated_at"] = now.Format(time.RFC3339)
	values["updated_at_epoch"] = now.UnixMilli()

	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return session.ErrNotFound
	}
	return nil
}

// DeleteSession implements session.Store. Turns and the session row go
// in one transaction so a session is never left half-deleted.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Turn{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return session.ErrNotFound
		}
		return nil
	})
}

// NextTurnID implements session.Store. The counter lives on the session
// row and is bumped with a single UPDATE, so two in-flight requests can
// never be issued the same number even across processes.
func (s *SessionStore) NextTurnID(ctx context.Context, sessionID string) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Session{}).Where("id = ?", sessionID).
			Update("turn_counter", gorm.Expr("turn_counter + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return session.ErrNotFound
		}
		return tx.Model(&Session{}).Where("id = ?", sessionID).
			Pluck("turn_counter", &next).Error
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// AppendExchange implements session.Store.
func (s *SessionStore) AppendExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}
	row := &Turn{
		SessionID:              sessionID,
		TurnNumber:             ex.TurnID,
		Transcription:          ex.Transcription,
		Reply:                  ex.Reply,
		AnalysisKind:           ex.Kind,
		NuanceInquiry:          models.JSONStringArray{},
		AlternativeExpressions: models.JSONPairArray{},
		Suggestion:             models.JSONStringArray{},
	}
	err := s.db.WithContext(ctx).Create(row).Error
	if isDuplicateKey(err) {
		return session.ErrTurnExists
	}
	if err != nil {
		return err
	}
	return s.touch(ctx, sessionID)
}

// isDuplicateKey recognizes a unique-constraint violation on either
// dialect. GORM's TranslateError covers Postgres; the modernc SQLite
// driver's error is not translated (its fields are unexported, so the
// translator's JSON round trip sees nothing), so its constraint codes
// are checked directly.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// History implements session.Store.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]models.HistoryEntry, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var rows []Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]models.HistoryEntry, 0, len(rows)*2)
	for i := range rows {
		entries = append(entries,
			models.HistoryEntry{Role: models.RoleUser, Content: rows[i].Transcription},
			models.HistoryEntry{Role: models.RoleModel, Content: rows[i].Reply},
		)
	}
	return entries, nil
}

// Turns implements session.Store.
func (s *SessionStore) Turns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var rows []Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Turn, len(rows))
	for i := range rows {
		out[i] = toModelTurn(&rows[i])
	}
	return out, nil
}

// SetWebpage implements session.Store.
func (s *SessionStore) SetWebpage(ctx context.Context, sessionID string, doc *models.WebpageDocument) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"url":              nullString(doc.URL),
			"webpage_url":      nullString(doc.URL),
			"webpage_title":    nullString(doc.Title),
			"webpage_content":  nullString(doc.Content),
			"updated_at":       now.Format(time.RFC3339),
			"updated_at_epoch": now.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Webpage implements session.Store.
func (s *SessionStore) Webpage(ctx context.Context, sessionID string) (*models.WebpageDocument, error) {
	var row Session
	err := s.db.WithContext(ctx).First(&row, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !row.WebpageURL.Valid {
		return nil, nil
	}
	return &models.WebpageDocument{
		URL:     row.WebpageURL.String,
		Title:   row.WebpageTitle.String,
		Content: row.WebpageContent.String,
	}, nil
}

// SaveAnalysis implements session.Store. The usual case updates the
// turn recorded by the immediate path; a turn missing its row (memory
// fallback raced the append, or the row predates the counter) is
// created so the result is never dropped.
func (s *SessionStore) SaveAnalysis(ctx context.Context, sessionID string, turnID int64, res *models.AnalysisResult) error {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Turn
		err := tx.Where("session_id = ? AND turn_number = ?", sessionID, turnID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = Turn{
				SessionID:  sessionID,
				TurnNumber: turnID,
			}
			applyAnalysis(&row, res)
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		applyAnalysis(&row, res)
		return tx.Save(&row).Error
	})
}

// Analysis implements session.Store.
func (s *SessionStore) Analysis(ctx context.Context, sessionID string, turnID int64) (*models.AnalysisResult, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var row Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND turn_number = ? AND analyzed = 1", sessionID, turnID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAnalysis(&row), nil
}

// Analyses implements session.Store.
func (s *SessionStore) Analyses(ctx context.Context, sessionID string) (map[int64]*models.AnalysisResult, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var rows []Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND analyzed = 1", sessionID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*models.AnalysisResult, len(rows))
	for i := range rows {
		out[rows[i].TurnNumber] = toAnalysis(&rows[i])
	}
	return out, nil
}

// Close implements session.Store. The underlying connection is owned by
// Store and closed there.
func (s *SessionStore) Close() error {
	return nil
}

func (s *SessionStore) ensureSession(ctx context.Context, id string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) touch(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"updated_at":       now.Format(time.RFC3339),
			"updated_at_epoch": now.UnixMilli(),
		}).Error
}

func applyAnalysis(row *Turn, res *models.AnalysisResult) {
	if row.AnalysisKind == "" {
		row.AnalysisKind = res.Kind
	}
	row.Advice = nullString(res.Advice)
	row.SpeechFlaws = nullString(res.SpeechFlaws)
	row.NuanceInquiry = orEmpty(res.NuanceInquiry)
	row.AlternativeExpressions = orEmptyPairs(res.AlternativeExpressions)
	row.Suggestion = orEmpty(res.Suggestion)
	row.Analyzed = 1
}

func toModelSession(row *Session) *models.Session {
	return &models.Session{
		ID:             row.ID,
		Name:           row.Name.String,
		Title:          row.Title,
		URL:            row.URL.String,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
		UpdatedAt:      row.UpdatedAt,
		UpdatedAtEpoch: row.UpdatedAtEpoch,
	}
}

func toModelTurn(row *Turn) *models.Turn {
	t := &models.Turn{
		ID:             row.ID,
		SessionID:      row.SessionID,
		TurnNumber:     row.TurnNumber,
		Transcription:  row.Transcription,
		Reply:          row.Reply,
		Kind:           row.AnalysisKind,
		Analyzed:       row.Analyzed != 0,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
	}
	if t.Analyzed {
		t.Analysis = toAnalysis(row)
	}
	return t
}

func toAnalysis(row *Turn) *models.AnalysisResult {
	return &models.AnalysisResult{
		Kind:                   row.AnalysisKind,
		Advice:                 row.Advice.String,
		SpeechFlaws:            row.SpeechFlaws.String,
		NuanceInquiry:          orEmpty(row.NuanceInquiry),
		AlternativeExpressions: orEmptyPairs(row.AlternativeExpressions),
		Suggestion:             orEmpty(row.Suggestion),
	}
}

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmpty(a models.JSONStringArray) models.JSONStringArray {
	if a == nil {
		return models.JSONStringArray{}
	}
	return a
}

func orEmptyPairs(p models.JSONPairArray) models.JSONPairArray {
	if p == nil {
		return models.JSONPairArray{}
	}
	return p
}
