package session

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glasswing-io/glasswing/internal/artifact"
	"github.com/glasswing-io/glasswing/internal/browser"
	"github.com/glasswing-io/glasswing/internal/browser/browsertest"
)

func newTestRegistry(t *testing.T, opts Options) (*Registry, *browsertest.Provider) {
	t.Helper()
	if opts.MaxSessions == 0 {
		opts.MaxSessions = 10
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = time.Hour
	}
	provider := browsertest.NewProvider()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := browser.NewPool(provider, 2, false, logger)
	base := t.TempDir()
	store := artifact.NewStore(filepath.Join(base, "ws"), filepath.Join(base, "art"), 1024)
	return NewRegistry(provider, pool, store, opts, logger), provider
}

func TestCreateSession(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})

	sess, err := r.Create(CreateOptions{WorkspaceID: "client_ab12cd34", Label: "checkout flow"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "session_") {
		t.Errorf("session id: got %q", sess.ID)
	}
	if sess.Meta.WorkspaceID != "client_ab12cd34" {
		t.Errorf("workspace id: got %q", sess.Meta.WorkspaceID)
	}
	if sess.Meta.WorkspaceDir == "" || sess.Meta.ArtifactsDir == "" {
		t.Error("workspace dirs not created")
	}
	if sess.Meta.Label != "checkout flow" {
		t.Errorf("label: got %q", sess.Meta.Label)
	}
	if sess.Page() == nil {
		t.Fatal("session has no page")
	}
	if sess.Meta.HAREnabled {
		t.Error("HAR enabled without default or request")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}

	got, err := r.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Error("Get returned a different session")
	}
}

func TestCreateSessionSanitizesWorkspace(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	sess, err := r.Create(CreateOptions{WorkspaceID: "../../evil path"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Meta.WorkspaceID != "evilpath" {
		t.Errorf("workspace id: got %q, want evilpath", sess.Meta.WorkspaceID)
	}
}

func TestCreateSessionCapacity(t *testing.T) {
	r, _ := newTestRegistry(t, Options{MaxSessions: 1})

	first, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}

	if _, err := r.Create(CreateOptions{}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("Create second: got %v, want ErrCapacity", err)
	}

	// Closing frees the slot.
	r.Close(first.ID, "test")
	if _, err := r.Create(CreateOptions{}); err != nil {
		t.Fatalf("Create after close: %v", err)
	}
}

func TestCreateSessionReleasesSlotOnError(t *testing.T) {
	r, provider := newTestRegistry(t, Options{MaxSessions: 1})
	provider.NewContextErr = errors.New("browser down")

	if _, err := r.Create(CreateOptions{}); err == nil {
		t.Fatal("Create: expected error")
	}

	provider.NewContextErr = nil
	if _, err := r.Create(CreateOptions{}); err != nil {
		t.Fatalf("Create after failure: %v (slot leaked)", err)
	}
}

func TestCreateSessionHAR(t *testing.T) {
	r, provider := newTestRegistry(t, Options{HARDefault: false, HARContent: "omit"})

	record := true
	sess, err := r.Create(CreateOptions{WorkspaceID: "ws1", RecordHAR: &record, HARContent: "embed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sess.Meta.HAREnabled {
		t.Fatal("HAR not enabled")
	}
	if !strings.HasSuffix(sess.Meta.HARPath, ".har") {
		t.Errorf("HAR path: got %q", sess.Meta.HARPath)
	}
	if !strings.Contains(filepath.Base(sess.Meta.HARPath), sess.ID) {
		t.Errorf("HAR filename lacks session id: %q", sess.Meta.HARPath)
	}
	if sess.PoolEligible() {
		t.Error("HAR session marked pool eligible")
	}

	created := provider.Created()
	ctx := created[len(created)-1]
	if ctx.Opts.RecordHARPath != sess.Meta.HARPath || ctx.Opts.HARContent != "embed" {
		t.Errorf("context options: %+v", ctx.Opts)
	}
}

func TestCloseSession(t *testing.T) {
	r, provider := newTestRegistry(t, Options{})
	sess, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var mu sync.Mutex
	var closedID, closedReason string
	r.SetClosedSink(func(id, reason string) {
		mu.Lock()
		closedID, closedReason = id, reason
		mu.Unlock()
	})

	r.Close(sess.ID, "client_request")
	if r.Count() != 0 {
		t.Errorf("Count after close: got %d", r.Count())
	}
	if provider.OpenContexts() != 0 {
		t.Errorf("open contexts after close: got %d", provider.OpenContexts())
	}
	mu.Lock()
	if closedID != sess.ID || closedReason != "client_request" {
		t.Errorf("closed sink: got (%q, %q)", closedID, closedReason)
	}
	mu.Unlock()

	// Closing again is a no-op.
	r.Close(sess.ID, "client_request")

	if _, err := r.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after close: got %v, want ErrNotFound", err)
	}
}

func TestPeekDoesNotTouch(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	sess, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	before := sess.LastUsed()
	time.Sleep(5 * time.Millisecond)

	if _, ok := r.Peek(sess.ID); !ok {
		t.Fatal("Peek: session not found")
	}
	if !sess.LastUsed().Equal(before) {
		t.Error("Peek refreshed the idle clock")
	}

	if _, err := r.Get(sess.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.LastUsed().Equal(before) {
		t.Error("Get did not refresh the idle clock")
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	r, _ := newTestRegistry(t, Options{IdleTimeout: 10 * time.Millisecond})

	idle, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	active, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	active.Touch()
	r.Sweep()

	if _, err := r.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session survived sweep: %v", err)
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Errorf("active session swept: %v", err)
	}
}

func TestSweepRemovesSessionOnCloseError(t *testing.T) {
	r, _ := newTestRegistry(t, Options{MaxSessions: 1, IdleTimeout: 10 * time.Millisecond})

	sess, err := r.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ctx := sess.Context().(*browsertest.Context)
	ctx.CloseErr = errors.New("browser has been closed")

	time.Sleep(20 * time.Millisecond)
	r.Sweep()

	if _, err := r.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived sweep: %v", err)
	}
	if !ctx.Closed() {
		t.Error("context not closed")
	}

	// The capacity slot is released even when the context close fails.
	if _, err := r.Create(CreateOptions{}); err != nil {
		t.Errorf("Create after sweep: %v", err)
	}
}

func TestReplaceContextConcurrentClose(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	sess, err := r.Create(CreateOptions{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.ReplaceContext(sess.ID, []byte(`{"cookies":[],"origins":[]}`))
	}()
	go func() {
		defer wg.Done()
		r.Close(sess.ID, "client_request")
	}()
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count after close: got %d, want 0", r.Count())
	}
}

func TestReplaceContext(t *testing.T) {
	r, provider := newTestRegistry(t, Options{})
	sess, err := r.Create(CreateOptions{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	oldCtx := sess.Context().(*browsertest.Context)

	var mu sync.Mutex
	var gotConsole []string
	r.SetConsoleSink(func(id string, msg browser.ConsoleMessage) {
		mu.Lock()
		gotConsole = append(gotConsole, id+":"+msg.Text)
		mu.Unlock()
	})

	state := []byte(`{"cookies":[{"name":"sid","value":"abc"}],"origins":[]}`)
	if err := r.ReplaceContext(sess.ID, state); err != nil {
		t.Fatalf("ReplaceContext: %v", err)
	}

	if !oldCtx.Closed() {
		t.Error("previous context left open")
	}
	newCtx := sess.Context().(*browsertest.Context)
	if newCtx == oldCtx {
		t.Fatal("context was not replaced")
	}
	if string(newCtx.Opts.StorageState) != string(state) {
		t.Errorf("storage state not applied: %s", newCtx.Opts.StorageState)
	}
	if sess.PoolEligible() {
		t.Error("replaced context still pool eligible")
	}

	// Console collector is re-attached to the new page.
	sess.Page().(*browsertest.Page).EmitConsole(browser.ConsoleMessage{Type: "log", Text: "hello"})
	mu.Lock()
	if len(gotConsole) != 1 || gotConsole[0] != sess.ID+":hello" {
		t.Errorf("console sink: got %v", gotConsole)
	}
	mu.Unlock()
	if logs := sess.ConsoleLogs(); len(logs) != 1 || logs[0].Text != "hello" {
		t.Errorf("console buffer: got %v", logs)
	}

	_ = provider
}

func TestDrainAll(t *testing.T) {
	r, provider := newTestRegistry(t, Options{})
	for i := 0; i < 3; i++ {
		if _, err := r.Create(CreateOptions{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	r.DrainAll()
	if r.Count() != 0 {
		t.Errorf("Count after drain: got %d", r.Count())
	}
	if provider.OpenContexts() != 0 {
		t.Errorf("open contexts after drain: got %d", provider.OpenContexts())
	}
}
