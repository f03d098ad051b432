// Package main is the inspection service entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/plantops/inspectd/internal/auth"
	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/internal/config"
	"github.com/plantops/inspectd/internal/evidence"
	"github.com/plantops/inspectd/internal/report"
	"github.com/plantops/inspectd/internal/session"
	"github.com/plantops/inspectd/internal/worker"
	"github.com/plantops/inspectd/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	httpPort := flag.Int("http-port", 0, "HTTP port (default: from settings)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.inspectd)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if *dataDir != "" {
		cfg.CatalogPath = filepath.Join(*dataDir, "checklists.json")
		cfg.ReportDBPath = filepath.Join(*dataDir, "inspections.db")
		cfg.EvidenceDir = filepath.Join(*dataDir, "evidence")
		cfg.AdminsPath = filepath.Join(*dataDir, "admins.json")
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

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load checklist catalog")
	}

	evidenceStore, err := evidence.NewStore(cfg.EvidenceDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.EvidenceDir).Msg("Failed to open evidence store")
	}

	reportStore, err := report.NewStore(report.StoreConfig{
		Path:     cfg.ReportDBPath,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ReportDBPath).Msg("Failed to open report store")
	}
	defer reportStore.Close()

	admins, err := auth.Load(cfg.AdminsPath, nil)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AdminsPath).Msg("Failed to load admin list")
	}

	sessions := session.NewStore()
	engine := session.NewEngine(sessions, cat, evidenceStore, reportStore)

	broadcaster := sse.NewBroadcaster()
	engine.SetOnEvent(broadcaster.Publish)

	watcher, err := catalog.NewWatcher(cat, func() {
		log.Info().Int("assets", cat.Len()).Msg("Checklist catalog reloaded")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start catalog watcher")
	}

	svc := worker.NewService(Version, cfg, cat, evidenceStore, reportStore, sessions, engine, admins, broadcaster)

	log.Info().
		Str("version", Version).
		Int("assets", cat.Len()).
		Int("admins", admins.Count()).
		Int("port", cfg.HTTPPort).
		Msg("Starting inspection service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Service error")
	}
}
