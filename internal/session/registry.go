package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/glasswing-io/glasswing/internal/artifact"
	"github.com/glasswing-io/glasswing/internal/browser"
)

var (
	// ErrCapacity means the configured session limit is reached.
	ErrCapacity = errors.New("maximum sessions reached")
	// ErrNotFound means no live session has the requested id.
	ErrNotFound = errors.New("session not found")
)

// Options tunes the registry.
type Options struct {
	MaxSessions int
	IdleTimeout time.Duration

	// HARDefault and HARContent are the process-wide HAR recording
	// defaults applied when a create request does not specify them.
	HARDefault bool
	HARContent string

	// VideoRoot, when set, enables per-workspace video recording.
	VideoRoot string

	// EventStream is the default lifecycle-event setting for new sessions.
	EventStream bool
}

// CreateOptions are the caller-supplied knobs for one session.
type CreateOptions struct {
	WorkspaceID string
	UserID      string
	Label       string
	RecordHAR   *bool
	HARContent  string
	HARPath     string
}

// ConsoleSink receives console messages as pages emit them, for live
// streaming to connected clients.
type ConsoleSink func(sessionID string, msg browser.ConsoleMessage)

// Registry owns every live session. Capacity is enforced with a weighted
// semaphore so a full registry rejects immediately instead of queuing.
type Registry struct {
	provider browser.Provider
	pool     *browser.Pool
	store    *artifact.Store
	logger   *slog.Logger
	opts     Options
	sem      *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*Session

	consoleSink ConsoleSink
	closedSink  func(sessionID, reason string)

	cleanupDone chan struct{}
}

// NewRegistry creates a registry over the given provider and pool.
func NewRegistry(provider browser.Provider, pool *browser.Pool, store *artifact.Store, opts Options, logger *slog.Logger) *Registry {
	return &Registry{
		provider: provider,
		pool:     pool,
		store:    store,
		logger:   logger.With("component", "registry"),
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxSessions)),
		sessions: make(map[string]*Session),
	}
}

// SetConsoleSink registers the live console stream receiver. Must be set
// before sessions are created.
func (r *Registry) SetConsoleSink(sink ConsoleSink) { r.consoleSink = sink }

// SetClosedSink registers a callback invoked after a session is removed.
func (r *Registry) SetClosedSink(sink func(sessionID, reason string)) { r.closedSink = sink }

// MaxSessions returns the configured capacity.
func (r *Registry) MaxSessions() int { return r.opts.MaxSessions }

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Create builds a session: workspace dirs, a pooled or dedicated context,
// one page and the console collector.
func (r *Registry) Create(opts CreateOptions) (*Session, error) {
	if !r.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w (%d)", ErrCapacity, r.opts.MaxSessions)
	}

	sess, err := r.create(opts)
	if err != nil {
		r.sem.Release(1)
		return nil, err
	}
	return sess, nil
}

func (r *Registry) create(opts CreateOptions) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	workspaceID, err := artifact.NormalizeWorkspaceID(opts.WorkspaceID)
	if err != nil {
		return nil, err
	}
	workspaceDir, err := r.store.WorkspaceDir(workspaceID)
	if err != nil {
		return nil, err
	}
	artifactsDir, err := r.store.ArtifactsDir(workspaceID)
	if err != nil {
		return nil, err
	}

	recordHAR := r.opts.HARDefault
	if opts.RecordHAR != nil {
		recordHAR = *opts.RecordHAR
	}
	harContent := strings.TrimSpace(opts.HARContent)
	if harContent == "" {
		harContent = strings.TrimSpace(r.opts.HARContent)
	}
	harPath := ""
	if recordHAR {
		harPath, err = r.store.ResolveName(artifactsDir, opts.HARPath, "har_"+id, ".har")
		if err != nil {
			return nil, err
		}
	}

	ctxOpts := browser.ContextOptions{
		RecordHARPath: harPath,
		HARContent:    harContent,
		VideoDir:      r.videoDir(workspaceID),
	}
	bctx, err := r.pool.Borrow(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("acquire browser context: %w", err)
	}
	r.pool.Reset(bctx)

	page, err := bctx.NewPage()
	if err != nil {
		if cerr := bctx.Close(); cerr != nil {
			r.logger.Debug("failed to close context after page error", "error", cerr)
		}
		return nil, fmt.Errorf("open page: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		Meta: Metadata{
			WorkspaceID:  workspaceID,
			WorkspaceDir: workspaceDir,
			ArtifactsDir: artifactsDir,
			UserID:       opts.UserID,
			Label:        opts.Label,
			HAREnabled:   recordHAR,
			HARContent:   harContent,
			HARPath:      harPath,
			PoolEligible: r.pool.Enabled() && !recordHAR,
		},
		ctx:         bctx,
		page:        page,
		lastUsed:    now,
		eventStream: r.opts.EventStream,
	}
	r.attachConsole(sess, page)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	r.logger.Info("created session", "session_id", id, "workspace_id", workspaceID)
	return sess, nil
}

func (r *Registry) videoDir(workspaceID string) string {
	if r.opts.VideoRoot == "" {
		return ""
	}
	return filepath.Join(r.opts.VideoRoot, workspaceID, "videos")
}

func (r *Registry) attachConsole(sess *Session, page browser.Page) {
	page.OnConsole(func(msg browser.ConsoleMessage) {
		sess.AppendConsole(msg)
		if r.consoleSink != nil {
			r.consoleSink(sess.ID, msg)
		}
	})
}

// Get returns a live session and refreshes its idle clock.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.Touch()
	return sess, nil
}

// Peek returns a session without refreshing its idle clock.
func (r *Registry) Peek(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// List returns a snapshot of every live session.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Close tears down a session. Closing an unknown id is a no-op; pool-
// eligible contexts are scrubbed and returned to the pool, everything
// else is closed. Release failures are logged, never returned, so a
// wedged context cannot keep a session alive.
func (r *Registry) Close(id, reason string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	bctx := sess.Context()
	if sess.PoolEligible() {
		r.pool.Reset(bctx)
		if err := r.pool.Release(bctx); err != nil {
			r.logger.Error("error releasing session context", "session_id", id, "error", err)
		}
	} else {
		if err := bctx.Close(); err != nil {
			r.logger.Error("error closing session context", "session_id", id, "error", err)
		}
	}
	r.sem.Release(1)

	r.logger.Info("closed session", "session_id", id, "reason", reason)
	if r.closedSink != nil {
		r.closedSink(id, reason)
	}
}

// ReplaceContext swaps the session's context for a fresh one seeded with
// the given storage state. The old context is closed first; the new one
// keeps the session's HAR settings, gets a new page with the console
// collector re-attached, and is never returned to the pool.
func (r *Registry) ReplaceContext(id string, state json.RawMessage) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}

	if err := sess.Context().Close(); err != nil {
		return fmt.Errorf("close previous context: %w", err)
	}

	harPath := sess.HARPath()
	if sess.Meta.HAREnabled && harPath == "" {
		harPath, err = r.store.ResolveName(sess.Meta.ArtifactsDir, "", "har_"+id, ".har")
		if err != nil {
			return err
		}
		sess.SetHARPath(harPath)
	}

	ctxOpts := browser.ContextOptions{
		StorageState: state,
		HARContent:   sess.Meta.HARContent,
		VideoDir:     r.videoDir(sess.Meta.WorkspaceID),
	}
	if sess.Meta.HAREnabled {
		ctxOpts.RecordHARPath = harPath
	}

	bctx, err := r.provider.NewContext(ctxOpts)
	if err != nil {
		return fmt.Errorf("create replacement context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		if cerr := bctx.Close(); cerr != nil {
			r.logger.Debug("failed to close replacement context", "error", cerr)
		}
		return fmt.Errorf("open page: %w", err)
	}

	sess.swap(bctx, page)
	r.attachConsole(sess, page)
	return nil
}

// StartCleanup launches the idle sweeper. It runs until ctx is canceled;
// call WaitCleanup to join it during shutdown.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	r.cleanupDone = make(chan struct{})
	go func() {
		defer close(r.cleanupDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// WaitCleanup blocks until the cleanup goroutine has exited.
func (r *Registry) WaitCleanup() {
	if r.cleanupDone != nil {
		<-r.cleanupDone
	}
}

// Sweep closes every session idle beyond the configured timeout.
func (r *Registry) Sweep() {
	r.mu.Lock()
	var expired []string
	for id, sess := range r.sessions {
		if sess.Expired(r.opts.IdleTimeout) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.logger.Info("cleaning up expired session", "session_id", id)
		r.Close(id, "idle_timeout")
	}
}

// DrainAll closes every live session. Called during shutdown.
func (r *Registry) DrainAll() {
	for _, sess := range r.List() {
		r.Close(sess.ID, "shutdown")
	}
}
