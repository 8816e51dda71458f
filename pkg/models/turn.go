package models

// Role tags one history entry as spoken by the user or by the model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// HistoryEntry is one role-tagged line of conversational context.
// History reads always return a slice, never a string sentinel:
// an empty history is an empty slice, an unknown session is an error.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AnalysisKind selects which analysis fields a turn carries.
type AnalysisKind string

const (
	// KindTranscript analyses the transcribed text only.
	KindTranscript AnalysisKind = "transcript"
	// KindAudio analyses the raw audio (pronunciation, delivery).
	KindAudio AnalysisKind = "audio"
)

// Valid reports whether k is a known analysis kind.
func (k AnalysisKind) Valid() bool {
	return k == KindTranscript || k == KindAudio
}

// Exchange is one completed immediate-path turn: the user's transcribed
// utterance and the model's reply, keyed by the turn id allocated for it.
// The same TurnID keys the background analysis result, which is the
// central consistency property of the whole system.
type Exchange struct {
	TurnID        int64        `json:"turn_id"`
	Transcription string       `json:"transcription"`
	Reply         string       `json:"reply"`
	Kind          AnalysisKind `json:"kind"`
}

// HistoryEntries projects the exchange into its two history lines.
func (e *Exchange) HistoryEntries() []HistoryEntry {
	return []HistoryEntry{
		{Role: RoleUser, Content: e.Transcription},
		{Role: RoleModel, Content: e.Reply},
	}
}

// AnalysisResult holds the linguistic feedback for one turn.
// Which fields are populated depends on the kind: transcript analyses
// carry speech flaws, nuance inquiries and alternative expressions;
// audio analyses additionally carry advice and suggestions.
type AnalysisResult struct {
	Kind                   AnalysisKind    `json:"kind"`
	Advice                 string          `json:"advice,omitempty"`
	SpeechFlaws            string          `json:"speechflaws,omitempty"`
	NuanceInquiry          JSONStringArray `json:"nuanceinquiry"`
	AlternativeExpressions JSONPairArray   `json:"alternativeexpressions"`
	Suggestion             JSONStringArray `json:"suggestion"`
}

// EmptyAnalysis returns the well-typed empty record for a kind.
// Stored when the upstream analysis call fails, so that polling
// converges to "completed, empty" instead of hanging at pending.
func EmptyAnalysis(kind AnalysisKind) *AnalysisResult {
	return &AnalysisResult{
		Kind:                   kind,
		NuanceInquiry:          JSONStringArray{},
		AlternativeExpressions: JSONPairArray{},
		Suggestion:             JSONStringArray{},
	}
}

// Empty reports whether the result carries no feedback at all,
// i.e. it is the failure fallback for its kind.
func (r *AnalysisResult) Empty() bool {
	return r.Advice == "" && r.SpeechFlaws == "" &&
		len(r.NuanceInquiry) == 0 &&
		len(r.AlternativeExpressions) == 0 &&
		len(r.Suggestion) == 0
}

// Turn is the durable record of one voice interaction within a session.
type Turn struct {
	ID             int64        `db:"id" json:"id"`
	SessionID      string       `db:"session_id" json:"session_id"`
	TurnNumber     int64        `db:"turn_number" json:"turn_number"`
	Transcription  string       `db:"transcription" json:"transcription"`
	Reply          string       `db:"reply" json:"reply"`
	Kind           AnalysisKind `db:"analysis_kind" json:"analysis_kind"`
	Analyzed       bool         `db:"analyzed" json:"analyzed"`
	CreatedAt      string       `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64        `db:"created_at_epoch" json:"created_at_epoch"`

	Analysis *AnalysisResult `json:"analysis,omitempty"`
}
