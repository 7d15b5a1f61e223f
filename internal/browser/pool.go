package browser

import (
	"log/slog"
	"sync"
)

// Pool keeps a bounded stack of warm browser contexts so sessions that
// need no special context options skip the context startup cost.
//
// Contexts that record HAR or start from imported storage state are never
// pooled; they get a dedicated context that is closed with the session.
type Pool struct {
	provider Provider
	size     int
	enabled  bool
	logger   *slog.Logger

	mu       sync.Mutex
	contexts []Context
}

// NewPool creates a pool over provider. A disabled pool still works: every
// borrow creates a fresh context and every release closes it.
func NewPool(provider Provider, size int, enabled bool, logger *slog.Logger) *Pool {
	return &Pool{
		provider: provider,
		size:     size,
		enabled:  enabled,
		logger:   logger.With("component", "pool"),
	}
}

// Enabled reports whether pooling is active.
func (p *Pool) Enabled() bool { return p.enabled }

// Len returns the number of warm contexts currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// Prewarm fills the pool up to its configured size.
func (p *Pool) Prewarm() error {
	if !p.enabled {
		return nil
	}
	for i := 0; i < p.size; i++ {
		ctx, err := p.provider.NewContext(ContextOptions{})
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.contexts = append(p.contexts, ctx)
		p.mu.Unlock()
	}
	p.logger.Info("prewarmed context pool", "size", p.size)
	return nil
}

// Borrow returns a context for a new session. Requests with storage state
// or HAR recording always get a fresh dedicated context.
func (p *Pool) Borrow(opts ContextOptions) (Context, error) {
	if !p.enabled || opts.RecordHARPath != "" || len(opts.StorageState) > 0 {
		return p.provider.NewContext(opts)
	}

	p.mu.Lock()
	if n := len(p.contexts); n > 0 {
		ctx := p.contexts[n-1]
		p.contexts = p.contexts[:n-1]
		p.mu.Unlock()
		return ctx, nil
	}
	p.mu.Unlock()

	return p.provider.NewContext(ContextOptions{})
}

// Release returns a pool-eligible context. The context is closed when the
// pool is disabled or already full.
func (p *Pool) Release(ctx Context) error {
	if !p.enabled {
		return ctx.Close()
	}

	p.mu.Lock()
	if len(p.contexts) >= p.size {
		p.mu.Unlock()
		return ctx.Close()
	}
	p.contexts = append(p.contexts, ctx)
	p.mu.Unlock()
	return nil
}

// Reset scrubs a context before it goes back into circulation: cookies
// cleared, page storage wiped, extra pages closed, the first page parked
// on about:blank. Individual failures are logged and skipped so a broken
// page never leaks a context.
func (p *Pool) Reset(ctx Context) {
	if err := ctx.ClearCookies(); err != nil {
		p.logger.Debug("failed to clear cookies during reset", "error", err)
	}
	pages := ctx.Pages()
	for i, page := range pages {
		if _, err := page.Evaluate("localStorage.clear(); sessionStorage.clear();"); err != nil {
			p.logger.Debug("failed to clear page storage during reset", "error", err)
		}
		if err := page.Goto("about:blank", "", 0); err != nil {
			p.logger.Debug("failed to blank page during reset", "error", err)
		}
		if i > 0 {
			if err := page.Close(); err != nil {
				p.logger.Debug("failed to close extra page during reset", "error", err)
			}
		}
	}
}

// Drain closes every pooled context. Called during shutdown.
func (p *Pool) Drain() {
	p.mu.Lock()
	contexts := p.contexts
	p.contexts = nil
	p.mu.Unlock()

	for _, ctx := range contexts {
		if err := ctx.Close(); err != nil {
			p.logger.Debug("failed to close pooled context", "error", err)
		}
	}
}
