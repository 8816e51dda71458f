package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/parla/pkg/models"
)

// GORM models. List-valued analysis fields use the JSON column types
// from pkg/models, which implement sql.Scanner and driver.Valuer.

// Session is the durable session row. It owns its turns and the
// attached webpage document; the turn counter backs the sequencer.
type Session struct {
	ID             string         `gorm:"primaryKey;type:text"`
	Name           sql.NullString `gorm:"type:text;index"`
	Title          string         `gorm:"type:text;not null"`
	URL            sql.NullString `gorm:"type:text"`
	WebpageURL     sql.NullString `gorm:"type:text"`
	WebpageTitle   sql.NullString `gorm:"type:text"`
	WebpageContent sql.NullString `gorm:"type:text"`
	TurnCounter    int64          `gorm:"default:0;not null"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"not null"`
	UpdatedAt      string         `gorm:"not null"`
	UpdatedAtEpoch int64          `gorm:"index:idx_sessions_updated,sort:desc;not null"`
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = now.UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = now.Format(time.RFC3339)
	}
	if s.UpdatedAtEpoch == 0 {
		s.UpdatedAtEpoch = s.CreatedAtEpoch
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = s.CreatedAt
	}
	return nil
}

// Turn is the durable record of one voice interaction. The turn number
// is unique per session and never reused.
type Turn struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"index;uniqueIndex:idx_turns_session_number,priority:1;not null"`
	TurnNumber int64  `gorm:"uniqueIndex:idx_turns_session_number,priority:2;not null"`

	Transcription string              `gorm:"type:text"`
	Reply         string              `gorm:"type:text"`
	AnalysisKind  models.AnalysisKind `gorm:"type:text;check:analysis_kind IN ('transcript', 'audio');not null"`

	// Analysis fields; present depends on the kind.
	Advice                 sql.NullString         `gorm:"type:text"`
	SpeechFlaws            sql.NullString         `gorm:"column:speechflaws;type:text"`
	NuanceInquiry          models.JSONStringArray `gorm:"column:nuanceinquiry;type:text"`
	AlternativeExpressions models.JSONPairArray   `gorm:"column:alternativeexpressions;type:text"`
	Suggestion             models.JSONStringArray `gorm:"type:text"`

	Analyzed       int    `gorm:"default:0;not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_turns_created,sort:desc;not null"`
}

func (Turn) TableName() string { return "turns" }

// BeforeCreate hook to ensure timestamps are set.
func (t *Turn) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = now.UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}
