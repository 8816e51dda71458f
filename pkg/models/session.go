// Package models contains domain models for parla.
package models

// Session represents one practice conversation owned by a single user.
type Session struct {
	ID             string `db:"id" json:"id"`
	Name           string `db:"name" json:"name,omitempty"`
	Title          string `db:"title" json:"title"`
	URL            string `db:"url" json:"url,omitempty"`
	CreatedAt      string `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64  `db:"created_at_epoch" json:"created_at_epoch"`
	UpdatedAt      string `db:"updated_at" json:"updated_at"`
	UpdatedAtEpoch int64  `db:"updated_at_epoch" json:"updated_at_epoch"`
}

// SessionUpdate carries the mutable session fields for an update.
// Nil pointers leave the stored value untouched.
type SessionUpdate struct {
	Title *string `json:"title,omitempty"`
	Name  *string `json:"name,omitempty"`
	URL   *string `json:"url,omitempty"`
}

// WebpageDocument is the single study document attached to a session.
// Each attachment replaces the previous one wholesale.
type WebpageDocument struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
