// Package worker provides the HTTP service for parla: the session API,
// the voice-turn endpoint and analysis polling.
package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/parla/internal/config"
	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/internal/turns"
)

// maxAudioUpload bounds multipart memory for audio submissions.
const maxAudioUpload = 32 << 20

// Service wires the HTTP routes to the session manager and the turn
// orchestrator. Construct with NewService, then Start.
type Service struct {
	version   string
	cfg       *config.Config
	sessions  *session.Manager
	orch      *turns.Orchestrator
	stt       genai.SpeechToText
	fetcher   genai.WebFetcher
	degraded  func() bool
	router    chi.Router
	server    *http.Server
	startTime time.Time
}

// NewService creates the service and registers routes. degraded reports
// whether the durable store has been abandoned; pass nil when running
// memory-only.
func NewService(cfg *config.Config, version string, sessions *session.Manager, orch *turns.Orchestrator, stt genai.SpeechToText, fetcher genai.WebFetcher, degraded func() bool) *Service {
	s := &Service{
		version:   version,
		cfg:       cfg,
		sessions:  sessions,
		orch:      orch,
		stt:       stt,
		fetcher:   fetcher,
		degraded:  degraded,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Router exposes the handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/transcribe", s.handleTranscribe)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Put("/", s.handleUpdateSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/webpage", s.handleAttachWebpage)
				r.Get("/conversations", s.handleConversations)
				r.Get("/conversations/{turnID}", s.handleConversation)
				r.Post("/turns", s.handleTurn)
				r.Get("/turns/{turnID}/analysis", s.handleAnalysisResult)
			})
		})
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured grace period.
func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Str("version", s.version).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := time.Duration(s.cfg.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}

	// Let in-flight background analyses settle before the stores close.
	if err := s.orch.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("pending", s.orch.PendingCount()).
			Msg("Abandoning unfinished background analyses")
		return nil
	}
	log.Info().Msg("All background analyses drained")
	return nil
}
