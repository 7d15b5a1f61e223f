package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// TokenValidator checks a bearer token presented to the artifact server.
type TokenValidator func(ctx context.Context, token string) error

// HTTPServer exposes artifacts over read-only HTTP:
//
//	GET /artifacts/{workspaceID}/{path...}
//
// so large files can be fetched without pushing them through the
// WebSocket as base64.
type HTTPServer struct {
	store        *Store
	logger       *slog.Logger
	authRequired bool
	validate     TokenValidator
	srv          *http.Server
}

// NewHTTPServer creates the artifact file server. validate may be nil when
// authRequired is false.
func NewHTTPServer(store *Store, addr string, authRequired bool, validate TokenValidator, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		store:        store,
		logger:       logger.With("component", "artifact-http"),
		authRequired: authRequired,
		validate:     validate,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Get("/healthz", s.handleHealthz)
	mux.Group(func(r chi.Router) {
		if s.authRequired {
			r.Use(s.authMiddleware)
		}
		r.Get("/artifacts/{workspaceID}/*", s.handleGetArtifact)
	})

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine.
func (s *HTTPServer) Start() {
	go func() {
		s.logger.Info("artifact HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("artifact HTTP server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the route mux for tests.
func (s *HTTPServer) Handler() http.Handler { return s.srv.Handler }

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = h[7:]
		} else {
			token = r.URL.Query().Get("token")
		}
		if token == "" || s.validate == nil || s.validate(r.Context(), token) != nil {
			writeHTTPError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	rel := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	if workspaceID == "" || rel == "" {
		writeHTTPError(w, http.StatusBadRequest, "missing artifact path")
		return
	}

	normalized, err := NormalizeWorkspaceID(workspaceID)
	if err != nil || normalized != workspaceID {
		writeHTTPError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	dir := filepath.Join(s.store.ArtifactRoot(), workspaceID)
	path, err := s.store.Resolve(dir, rel)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid artifact path")
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeHTTPError(w, http.StatusNotFound, "artifact not found")
		return
	}

	http.ServeFile(w, r, path)
}

func writeHTTPError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
