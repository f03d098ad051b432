// Package worker provides the HTTP status and export service.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/plantops/inspectd/internal/auth"
	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/internal/commands"
	"github.com/plantops/inspectd/internal/config"
	"github.com/plantops/inspectd/internal/evidence"
	"github.com/plantops/inspectd/internal/report"
	"github.com/plantops/inspectd/internal/session"
	"github.com/plantops/inspectd/internal/worker/sse"
)

// Service exposes the inspection service over HTTP: the operator webhook,
// status, statistics, CSV export, catalog import from the maintenance
// dashboard, and live events.
type Service struct {
	version     string
	cfg         *config.Config
	catalog     *catalog.Catalog
	evidence    *evidence.Store
	reports     *report.Store
	sessions    *session.Store
	handler     *commands.Handler
	outbox      *outbox
	broadcaster *sse.Broadcaster
	router      chi.Router
	startTime   time.Time
	ready       atomic.Bool
}

// NewService wires the HTTP service. The broadcaster is shared with the
// engine's event callback so dashboard clients see sessions live; the command
// handler is built over an outbox so webhook replies travel back in the HTTP
// response.
func NewService(version string, cfg *config.Config, cat *catalog.Catalog, ev *evidence.Store, reports *report.Store, sessions *session.Store, engine *session.Engine, admins *auth.Oracle, broadcaster *sse.Broadcaster) *Service {
	ob := newOutbox()
	s := &Service{
		version:     version,
		cfg:         cfg,
		catalog:     cat,
		evidence:    ev,
		reports:     reports,
		sessions:    sessions,
		handler:     commands.NewHandler(engine, cat, ev, reports, admins, ob),
		outbox:      ob,
		broadcaster: broadcaster,
		router:      chi.NewRouter(),
		startTime:   time.Now(),
	}
	s.setupRoutes()
	s.ready.Store(true)
	return s
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/updates", s.handleUpdate)
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/export/csv", s.handleExportCSV)
		r.Post("/catalog/import", s.handleCatalogImport)
		r.Get("/events", s.broadcaster.ServeHTTP)
	})
}

// Router returns the HTTP handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.cfg.HTTPPort).Msg("HTTP service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
