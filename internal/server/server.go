// Package server wires every component together and owns the process
// lifecycle: startup order, the listeners and a clean shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/glasswing-io/glasswing/internal/artifact"
	"github.com/glasswing-io/glasswing/internal/auth"
	"github.com/glasswing-io/glasswing/internal/browser"
	"github.com/glasswing-io/glasswing/internal/config"
	"github.com/glasswing-io/glasswing/internal/gateway"
	"github.com/glasswing-io/glasswing/internal/session"
	"github.com/glasswing-io/glasswing/internal/store"
)

// Server is the assembled application.
type Server struct {
	cfg      *config.Config
	provider browser.Provider
	logger   *slog.Logger
}

// New creates a server over an already-started browser provider.
func New(cfg *config.Config, provider browser.Provider, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, provider: provider, logger: logger.With("component", "server")}
}

// Run starts everything and blocks until ctx is canceled or a listener
// fails. Shutdown order is the reverse of startup: stop accepting,
// join the cleanup sweeper, drain sessions, drain the pool, close the
// audit store.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg

	artifacts := artifact.NewStore(cfg.Artifact.WorkspaceRoot, cfg.Artifact.Root, cfg.Artifact.MaxBytes)

	var validator auth.Validator
	if cfg.AuthRequired() || cfg.ArtifactAuthRequired() {
		var err error
		validator, err = auth.NewValidator(cfg.Auth)
		if err != nil {
			return fmt.Errorf("configure auth: %w", err)
		}
	}

	auditStore, err := store.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			s.logger.Warn("error closing audit store", "error", err)
		}
	}()

	poolEnabled := cfg.Pool.Enabled
	if poolEnabled && cfg.Browser.VideoDir != "" {
		s.logger.Warn("context pooling disabled because video recording is enabled")
		poolEnabled = false
	}
	pool := browser.NewPool(s.provider, cfg.Pool.Size, poolEnabled, s.logger)
	if err := pool.Prewarm(); err != nil {
		return fmt.Errorf("prewarm context pool: %w", err)
	}
	defer pool.Drain()

	registry := session.NewRegistry(s.provider, pool, artifacts, session.Options{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTimeout: cfg.Session.IdleTimeout.Duration,
		HARDefault:  cfg.HAR.Enabled,
		HARContent:  cfg.HAR.Content,
		VideoRoot:   cfg.Browser.VideoDir,
		EventStream: cfg.EventStreamEnabled(),
	}, s.logger)
	defer registry.DrainAll()

	headless := cfg.Browser.Headless == nil || *cfg.Browser.Headless
	gw := gateway.New(registry, artifacts, pool, auditStore, validator, gateway.Options{
		AuthRequired:     cfg.AuthRequired(),
		HandshakeTimeout: cfg.Auth.HandshakeTimeout.Duration,
		MaxMessageBytes:  cfg.Server.MaxMessageBytes,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		EventStream:      cfg.EventStreamEnabled(),
		ConsoleStream:    cfg.Session.ConsoleStream,
		ArtifactBaseURL:  s.artifactBaseURL(),
		Health: gateway.HealthInfo{
			Browser:             cfg.Browser.Kind,
			Headless:            headless,
			HAREnabled:          cfg.HAR.Enabled,
			HARContent:          cfg.HAR.Content,
			ArtifactRoot:        cfg.Artifact.Root,
			ArtifactHTTPEnabled: cfg.Artifact.HTTP.Enabled,
			ArtifactHTTPAddr:    cfg.Artifact.HTTP.Addr,
		},
	}, s.logger)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	registry.StartCleanup(cleanupCtx, cfg.Session.CleanupInterval.Duration)
	defer func() {
		cancelCleanup()
		registry.WaitCleanup()
	}()

	pruneCtx, cancelPrune := context.WithCancel(context.Background())
	pruneDone := s.startAuditPruner(pruneCtx, auditStore)
	defer func() {
		cancelPrune()
		<-pruneDone
	}()

	var artifactSrv *artifact.HTTPServer
	if cfg.Artifact.HTTP.Enabled {
		var artifactValidate artifact.TokenValidator
		if validator != nil {
			artifactValidate = validator.Validate
		}
		artifactSrv = artifact.NewHTTPServer(artifacts, cfg.Artifact.HTTP.Addr, cfg.ArtifactAuthRequired(), artifactValidate, s.logger)
		artifactSrv.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := artifactSrv.Shutdown(shutCtx); err != nil {
				s.logger.Warn("error stopping artifact HTTP server", "error", err)
			}
		}()
	}

	wsSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: http.HandlerFunc(gw.ServeWS),
	}

	errCh := make(chan error, 1)
	go func() {
		scheme := "ws"
		if cfg.Server.TLSCert != "" {
			scheme = "wss"
		}
		s.logger.Info("WebSocket server listening", "addr", cfg.Server.Addr, "scheme", scheme)
		var err error
		if cfg.Server.TLSCert != "" {
			err = wsSrv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = wsSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("websocket server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsSrv.Shutdown(shutCtx); err != nil {
		s.logger.Warn("error stopping websocket server", "error", err)
	}
	return nil
}

// artifactBaseURL builds the externally visible base for artifact links,
// or "" when the artifact server is disabled.
func (s *Server) artifactBaseURL() string {
	if !s.cfg.Artifact.HTTP.Enabled {
		return ""
	}
	host, port, err := net.SplitHostPort(s.cfg.Artifact.HTTP.Addr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// startAuditPruner deletes audit events past the retention window on an
// hourly cadence.
func (s *Server) startAuditPruner(ctx context.Context, auditStore store.Store) <-chan struct{} {
	done := make(chan struct{})
	retention := s.cfg.Storage.AuditRetention.Duration
	go func() {
		defer close(done)
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				n, err := auditStore.PruneEvents(pruneCtx, time.Now().Add(-retention))
				cancel()
				if err != nil {
					s.logger.Warn("audit prune failed", "error", err)
				} else if n > 0 {
					s.logger.Info("pruned audit events", "count", n)
				}
			}
		}
	}()
	return done
}
