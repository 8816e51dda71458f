package worker

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/internal/turns"
	"github.com/thebtf/parla/pkg/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps session-layer errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

type createSessionRequest struct {
	Title string `json:"title"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Title, req.Name, req.URL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	// Attaching the page is best effort: the fetcher fails soft and a
	// session without context is still usable.
	if req.URL != "" && s.fetcher != nil {
		if doc, _ := s.fetcher.Fetch(r.Context(), req.URL); doc != nil {
			if err := s.sessions.AttachWebpage(r.Context(), sess.ID, doc); err != nil {
				log.Warn().Err(err).Str("sessionId", sess.ID).Msg("Failed to attach webpage on create")
			}
		}
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var upd models.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Update(r.Context(), id, &upd); err != nil {
		writeStoreError(w, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.orch.ForgetSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

type attachWebpageRequest struct {
	URL string `json:"url"`
}

func (s *Service) handleAttachWebpage(w http.ResponseWriter, r *http.Request) {
	var req attachWebpageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	id := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	doc, _ := s.fetcher.Fetch(r.Context(), req.URL)
	if doc == nil {
		writeError(w, http.StatusUnprocessableEntity, "could not fetch webpage")
		return
	}
	if err := s.sessions.AttachWebpage(r.Context(), id, doc); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Service) handleConversations(w http.ResponseWriter, r *http.Request) {
	turnList, err := s.sessions.Turns(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": turnList,
		"total":         len(turnList),
	})
}

func (s *Service) handleConversation(w http.ResponseWriter, r *http.Request) {
	turnID, err := strconv.ParseInt(chi.URLParam(r, "turnID"), 10, 64)
	if err != nil || turnID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	turnList, err := s.sessions.Turns(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, turn := range turnList {
		if turn.TurnNumber == turnID {
			writeJSON(w, http.StatusOK, turn)
			return
		}
	}
	writeError(w, http.StatusNotFound, "conversation not found")
}

// readAudioUpload pulls the audio_file part out of a multipart form.
func readAudioUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("audio_file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *Service) handleTurn(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudioUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	kind := models.AnalysisKind(r.FormValue("analysis_kind"))

	result, err := s.orch.HandleTurn(r.Context(), chi.URLParam(r, "sessionID"), audio, kind)
	if err != nil {
		switch {
		case errors.Is(err, genai.ErrEmptyAudio):
			writeError(w, http.StatusBadRequest, "empty audio data")
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		default:
			log.Error().Err(err).Msg("Turn failed")
			writeError(w, http.StatusInternalServerError, "error processing audio")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type analysisResponse struct {
	Status         turns.Status           `json:"status"`
	AnalysisResult *models.AnalysisResult `json:"analysis_result,omitempty"`
}

func (s *Service) handleAnalysisResult(w http.ResponseWriter, r *http.Request) {
	turnID, err := strconv.ParseInt(chi.URLParam(r, "turnID"), 10, 64)
	if err != nil || turnID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid turn id")
		return
	}

	status, res, err := s.orch.Result(r.Context(), chi.URLParam(r, "sessionID"), turnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Status: status, AnalysisResult: res})
}

func (s *Service) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudioUpload(r)
	if err != nil || len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}

	transcript, err := s.stt.Transcribe(r.Context(), audio, genai.AudioConfig{
		SampleRate: s.cfg.SampleRate,
		Encoding:   s.cfg.AudioEncoding,
		Language:   s.cfg.Language,
	})
	if err != nil {
		log.Error().Err(err).Msg("Transcription failed")
		writeError(w, http.StatusInternalServerError, "error processing audio")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := false
	if s.degraded != nil {
		degraded = s.degraded()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"version":          s.version,
		"uptime_seconds":   int(time.Since(s.startTime).Seconds()),
		"storage_degraded": degraded,
		"pending_analyses": s.orch.PendingCount(),
	})
}
