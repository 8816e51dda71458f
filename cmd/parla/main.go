// Package main provides the parla conversation service entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/parla/internal/config"
	dbgorm "github.com/thebtf/parla/internal/db/gorm"
	"github.com/thebtf/parla/internal/genai"
	"github.com/thebtf/parla/internal/prompts"
	"github.com/thebtf/parla/internal/session"
	"github.com/thebtf/parla/internal/turns"
	"github.com/thebtf/parla/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	memoryOnly := flag.Bool("memory-only", false, "Skip durable storage entirely")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if cfg.GatewayURL == "" {
		log.Fatal().Msg("gateway_url must be configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	// Prompt library, hot-reloaded when a prompt directory is set.
	library := prompts.Default()
	if cfg.PromptDir != "" {
		library, err = prompts.Load(cfg.PromptDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.PromptDir).Msg("Failed to load prompts")
		}
		promptWatcher, err := prompts.NewWatcher(library)
		if err != nil {
			log.Warn().Err(err).Msg("Prompt watcher unavailable, hot reload disabled")
		} else if err := promptWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start prompt watcher")
		} else {
			defer promptWatcher.Stop()
		}
	}

	// Storage: hybrid over the database unless running memory-only.
	var (
		store    session.Store
		degraded func() bool
	)
	if *memoryOnly {
		log.Warn().Msg("Running memory-only, sessions will not survive restarts")
		store = session.NewMemoryStore()
	} else {
		dbStore, err := dbgorm.NewStore(dbgorm.Config{
			Path:        cfg.DatabasePath,
			PostgresDSN: cfg.PostgresDSN,
			MaxConns:    cfg.MaxConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer dbStore.Close()

		hybrid := session.NewHybrid(dbgorm.NewSessionStore(dbStore))
		degraded = hybrid.Degraded
		store = hybrid
	}

	sessions := session.NewManager(store)
	gateway := genai.NewGateway(cfg.GatewayURL, cfg.GatewayKey, library)

	// Background analyses outlive the serving context: Start drains
	// them before returning, so this one is only cancelled afterwards.
	orchCtx, orchCancel := context.WithCancel(context.Background())
	defer orchCancel()
	orch := turns.New(orchCtx, sessions, gateway, gateway, library, cfg.Language)

	service := worker.NewService(cfg, Version, sessions, orch, gateway, genai.NewPageFetcher(), degraded)

	log.Info().Str("version", Version).Str("addr", cfg.ListenAddr).Msg("Starting parla")
	if err := service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
