package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/glasswing-io/glasswing/internal/artifact"
	"github.com/glasswing-io/glasswing/internal/auth"
	"github.com/glasswing-io/glasswing/internal/browser"
	"github.com/glasswing-io/glasswing/internal/session"
	"github.com/glasswing-io/glasswing/internal/store"
	"github.com/glasswing-io/glasswing/pkg/protocol"
)

// HealthInfo is the static part of the health report; live counts are
// read from the registry and pool.
type HealthInfo struct {
	Browser             string
	Headless            bool
	HAREnabled          bool
	HARContent          string
	ArtifactRoot        string
	ArtifactHTTPEnabled bool
	ArtifactHTTPAddr    string
}

// Options configures the Gateway.
type Options struct {
	AuthRequired     bool
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
	AllowedOrigins   []string

	// PingInterval and PongWait tune the WebSocket keepalive. Zero values
	// use the package defaults.
	PingInterval time.Duration
	PongWait     time.Duration

	// EventStream is the global lifecycle-event switch.
	EventStream bool
	// ConsoleStream forwards page console output as live events.
	ConsoleStream bool

	// ArtifactBaseURL, when set, is prepended to artifact paths in
	// list_artifacts/get_artifact responses (e.g. "http://127.0.0.1:8090").
	ArtifactBaseURL string

	Health HealthInfo
}

type handlerFunc func(ctx context.Context, sessionID string, args Args) (any, error)

// Gateway accepts WebSocket connections and runs the command loop for
// each one.
type Gateway struct {
	registry  *session.Registry
	artifacts *artifact.Store
	pool      *browser.Pool
	audit     store.Store
	validator auth.Validator
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	opts      Options
	handlers  map[string]handlerFunc

	mu     sync.RWMutex
	owners map[string]map[string]*wsConn // session_id -> conn_id -> conn
}

// New creates a Gateway. validator may be nil when auth is disabled and
// audit may be nil to disable the audit trail.
func New(registry *session.Registry, artifacts *artifact.Store, pool *browser.Pool, audit store.Store, validator auth.Validator, opts Options, logger *slog.Logger) *Gateway {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.MaxMessageBytes == 0 {
		opts.MaxMessageBytes = 10 * 1024 * 1024
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = wsPingInterval
	}
	if opts.PongWait == 0 {
		opts.PongWait = wsPongWait
	}

	g := &Gateway{
		registry:  registry,
		artifacts: artifacts,
		pool:      pool,
		audit:     audit,
		validator: validator,
		logger:    logger.With("component", "gateway"),
		upgrader:  makeUpgrader(opts.AllowedOrigins),
		opts:      opts,
		owners:    make(map[string]map[string]*wsConn),
	}
	g.handlers = g.commandHandlers()

	registry.SetConsoleSink(g.consoleSink)
	registry.SetClosedSink(g.sessionClosedSink)
	return g
}

// consoleSink streams captured console messages to session owners.
func (g *Gateway) consoleSink(sessionID string, msg browser.ConsoleMessage) {
	if !g.opts.ConsoleStream {
		return
	}
	g.emitToSession(sessionID, protocol.EventConsole, map[string]any{
		"type":     msg.Type,
		"text":     msg.Text,
		"location": msg.Location,
		"ts":       float64(time.Now().UnixNano()) / float64(time.Second),
	})
}

// sessionClosedSink notifies owners when a session goes away, whatever
// the reason, then drops the ownership records.
func (g *Gateway) sessionClosedSink(sessionID, reason string) {
	g.emitToSession(sessionID, protocol.EventSessionClosed, map[string]any{
		"reason": reason,
	})
	g.dropSession(sessionID)
}

// ServeWS upgrades and runs one client connection. Blocks until the
// client disconnects.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		id:           uuid.New().String()[:8],
		conn:         raw,
		pingInterval: g.opts.PingInterval,
		pongWait:     g.opts.PongWait,
	}
	g.logger.Info("new connection", "conn_id", c.id, "remote", raw.RemoteAddr().String())

	raw.SetReadLimit(g.opts.MaxMessageBytes)

	if g.opts.AuthRequired {
		if !g.authenticate(r.Context(), c) {
			return
		}
	}

	stopKeepalive := c.startKeepalive()
	defer stopKeepalive()

	// Every connection gets a default session scoped to its lifetime.
	sess, err := g.registry.Create(session.CreateOptions{WorkspaceID: "client_" + c.id})
	if err != nil {
		g.logger.Error("failed to create default session", "conn_id", c.id, "error", err)
		_ = c.send(protocol.ErrorMessage{Type: protocol.TypeError, Error: err.Error()})
		_ = raw.Close()
		return
	}
	g.registerOwner(sess.ID, c)

	defer func() {
		g.registry.Close(sess.ID, "disconnect")
		g.unregisterConn(c)
		_ = raw.Close()
		g.logger.Info("connection closed", "conn_id", c.id)
	}()

	_ = c.send(protocol.Connected{
		Type:         protocol.TypeConnected,
		SessionID:    sess.ID,
		WorkspaceID:  sess.Meta.WorkspaceID,
		ArtifactsDir: sess.Meta.ArtifactsDir,
		Message:      "Session created successfully",
	})

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("read error", "conn_id", c.id, "error", err)
			}
			return
		}
		g.handleMessage(r.Context(), c, sess.ID, data)
		c.extendReadDeadline()
	}
}

// authenticate runs the first-message auth handshake. The client has
// HandshakeTimeout to present a valid token or the connection is closed
// with a policy violation.
func (g *Gateway) authenticate(ctx context.Context, c *wsConn) bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(g.opts.HandshakeTimeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.closeWithPolicy("Authentication timeout")
		} else {
			c.closeWithPolicy("Authentication error")
		}
		return false
	}

	var msg protocol.Auth
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != protocol.TypeAuth {
		g.rejectAuth(c)
		return false
	}
	if err := g.validator.Validate(ctx, msg.Token); err != nil {
		g.rejectAuth(c)
		return false
	}

	_ = c.send(protocol.AuthSuccess{
		Type:    protocol.TypeAuthSuccess,
		Message: "Authenticated successfully",
	})
	g.logger.Info("client authenticated", "conn_id", c.id)
	return true
}

func (g *Gateway) rejectAuth(c *wsConn) {
	_ = c.send(protocol.ErrorMessage{Type: protocol.TypeError, Error: "Authentication failed"})
	c.closeWithPolicy("Authentication failed")
}
