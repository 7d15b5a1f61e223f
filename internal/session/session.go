// Package session holds the per-session browser state and the registry
// that owns every live session.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/glasswing-io/glasswing/internal/browser"
)

// Metadata is the descriptive state attached to a session at creation.
// Mutable fields are guarded by the session mutex; use the accessors.
type Metadata struct {
	WorkspaceID  string
	WorkspaceDir string
	ArtifactsDir string
	UserID       string
	Label        string
	HAREnabled   bool
	HARContent   string
	HARPath      string
	PoolEligible bool
}

// Session is one live browser session: a context, its active page and
// bookkeeping for idle cleanup and console capture.
type Session struct {
	ID        string
	CreatedAt time.Time
	Meta      Metadata

	mu          sync.Mutex
	ctx         browser.Context
	page        browser.Page
	lastUsed    time.Time
	tracing     bool
	eventStream bool
	consoleLogs []browser.ConsoleMessage
}

func newSessionID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "session_" + hex.EncodeToString(b), nil
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns the time of the most recent command.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(timeout time.Duration) bool {
	return time.Since(s.LastUsed()) > timeout
}

// Context returns the session's current browser context.
func (s *Session) Context() browser.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Page returns the session's active page.
func (s *Session) Page() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// swap installs a replacement context and page. Replacement contexts
// never go back to the pool.
func (s *Session) swap(ctx browser.Context, page browser.Page) {
	s.mu.Lock()
	s.ctx = ctx
	s.page = page
	s.tracing = false
	s.Meta.PoolEligible = false
	s.mu.Unlock()
}

// PoolEligible reports whether the session's context may be returned to
// the pool on close.
func (s *Session) PoolEligible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Meta.PoolEligible
}

// TracingActive reports whether a trace is being recorded.
func (s *Session) TracingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracing
}

// SetTracing flips the tracing flag. It returns false when the flag
// already had the requested value, so start/stop stay idempotent.
func (s *Session) SetTracing(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracing == active {
		return false
	}
	s.tracing = active
	return true
}

// EventStreamEnabled reports whether this session wants lifecycle events.
func (s *Session) EventStreamEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventStream
}

// SetEventStream toggles lifecycle event delivery for this session.
func (s *Session) SetEventStream(enabled bool) {
	s.mu.Lock()
	s.eventStream = enabled
	s.mu.Unlock()
}

// SetHARPath records where the HAR file will be written.
func (s *Session) SetHARPath(path string) {
	s.mu.Lock()
	s.Meta.HARPath = path
	s.mu.Unlock()
}

// HARPath returns the HAR recording path, if any.
func (s *Session) HARPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Meta.HARPath
}

// AppendConsole buffers a console message captured from the page.
func (s *Session) AppendConsole(msg browser.ConsoleMessage) {
	s.mu.Lock()
	s.consoleLogs = append(s.consoleLogs, msg)
	s.mu.Unlock()
}

// ConsoleLogs returns a snapshot of the buffered console messages.
func (s *Session) ConsoleLogs() []browser.ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]browser.ConsoleMessage, len(s.consoleLogs))
	copy(out, s.consoleLogs)
	return out
}

// ClearConsoleLogs drops the console buffer.
func (s *Session) ClearConsoleLogs() {
	s.mu.Lock()
	s.consoleLogs = nil
	s.mu.Unlock()
}
