// Package browsertest provides an in-memory browser.Provider for tests.
package browsertest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/glasswing-io/glasswing/internal/browser"
)

// Provider is a fake browser engine. It records every context it creates
// so tests can assert on lifecycle behavior.
type Provider struct {
	mu sync.Mutex

	// NewContextErr, when set, fails every NewContext call.
	NewContextErr error

	contexts []*Context
	closed   bool
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NewContextErr != nil {
		return nil, p.NewContextErr
	}
	if p.closed {
		return nil, errors.New("provider closed")
	}
	ctx := &Context{Opts: opts}
	if len(opts.StorageState) > 0 {
		var st storageState
		if json.Unmarshal(opts.StorageState, &st) == nil {
			ctx.cookies = st.Cookies
		}
	}
	p.contexts = append(p.contexts, ctx)
	return ctx, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Created returns every context the provider has handed out, open or not.
func (p *Provider) Created() []*Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Context(nil), p.contexts...)
}

// OpenContexts counts contexts that have not been closed.
func (p *Provider) OpenContexts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ctx := range p.contexts {
		if !ctx.Closed() {
			n++
		}
	}
	return n
}

func (p *Provider) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Context is a fake browsing context.
type Context struct {
	Opts browser.ContextOptions

	// CloseErr, when set, is returned by Close (the context still counts
	// as closed).
	CloseErr error

	mu      sync.Mutex
	pages   []*Page
	cookies []browser.Cookie
	tracing bool
	closed  bool
}

// storageState mirrors the Playwright storage state document. The fake
// keeps cookies authoritative so an exported state reflects AddCookies
// and an imported state seeds the context's cookie jar.
type storageState struct {
	Cookies []browser.Cookie `json:"cookies"`
	Origins []any            `json:"origins"`
}

func (c *Context) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("context closed")
	}
	page := &Page{ctx: c, url: "about:blank"}
	c.pages = append(c.pages, page)
	return page, nil
}

func (c *Context) Pages() []browser.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]browser.Page, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.closed {
			out = append(out, p)
		}
	}
	return out
}

func (c *Context) Cookies() ([]browser.Cookie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.Cookie(nil), c.cookies...), nil
}

func (c *Context) AddCookies(cookies []browser.Cookie) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = append(c.cookies, cookies...)
	return nil
}

func (c *Context) ClearCookies() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = nil
	return nil
}

func (c *Context) StorageState(path string) (json.RawMessage, error) {
	c.mu.Lock()
	st := storageState{
		Cookies: append(make([]browser.Cookie, 0, len(c.cookies)), c.cookies...),
		Origins: []any{},
	}
	c.mu.Unlock()

	state, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.WriteFile(path, state, 0o644); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (c *Context) StartTracing(screenshots, snapshots, sources bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracing = true
	return nil
}

func (c *Context) StopTracing(path string) error {
	c.mu.Lock()
	c.tracing = false
	c.mu.Unlock()
	return os.WriteFile(path, []byte("trace"), 0o644)
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) Tracing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracing
}

// Page is a fake tab. Behavior knobs are plain exported fields; tests set
// them before issuing commands and read Ops afterwards.
type Page struct {
	ctx *Context

	// TitleVal and ContentVal are returned by Title and Content.
	TitleVal   string
	ContentVal string

	// EvaluateResult is returned by Evaluate for non-empty scripts.
	EvaluateResult any

	// EvaluateDelay stalls Evaluate before it returns.
	EvaluateDelay time.Duration

	// FailNav, when set, fails Goto with this error.
	FailNav error

	mu        sync.Mutex
	url       string
	ops       []string
	inputs    map[string]string
	consoleFn func(browser.ConsoleMessage)
	closed    bool
}

func (p *Page) record(op string) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()
}

// Ops returns the operations the page has performed, in order.
func (p *Page) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *Page) Goto(url, waitUntil string, timeout float64) error {
	if p.FailNav != nil {
		return p.FailNav
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.record("goto " + url)
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() (string, error)   { return p.TitleVal, nil }
func (p *Page) Content() (string, error) { return p.ContentVal, nil }

func (p *Page) Reload(waitUntil string) error {
	p.record("reload")
	return nil
}

func (p *Page) GoBack() error {
	p.record("back")
	return nil
}

func (p *Page) GoForward() error {
	p.record("forward")
	return nil
}

func (p *Page) Screenshot(path string, fullPage bool) error {
	p.record("screenshot " + path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *Page) Click(selector, button string, clickCount int, timeout float64) error {
	p.record("click " + selector)
	return nil
}

func (p *Page) Fill(selector, value string, timeout float64) error {
	p.mu.Lock()
	if p.inputs == nil {
		p.inputs = make(map[string]string)
	}
	p.inputs[selector] = value
	p.mu.Unlock()
	p.record("fill " + selector)
	return nil
}

func (p *Page) Type(selector, text string, delay, timeout float64) error {
	p.record("type " + selector)
	return nil
}

func (p *Page) Press(selector, key string) error {
	p.record(fmt.Sprintf("press %s %s", selector, key))
	return nil
}

func (p *Page) Check(selector string) error   { p.record("check " + selector); return nil }
func (p *Page) Uncheck(selector string) error { p.record("uncheck " + selector); return nil }
func (p *Page) Hover(selector string) error   { p.record("hover " + selector); return nil }
func (p *Page) Focus(selector string) error   { p.record("focus " + selector); return nil }

func (p *Page) SelectOption(selector string, target browser.SelectTarget) error {
	p.record("select " + selector)
	return nil
}

func (p *Page) Evaluate(script string) (any, error) {
	if p.EvaluateDelay > 0 {
		time.Sleep(p.EvaluateDelay)
	}
	p.record("evaluate")
	return p.EvaluateResult, nil
}

func (p *Page) WaitForSelector(selector, state string, timeout float64) error {
	p.record("wait_selector " + selector)
	return nil
}

func (p *Page) WaitForURL(pattern string, timeout float64) error {
	p.record("wait_url " + pattern)
	return nil
}

func (p *Page) WaitForLoadState(state string, timeout float64) error {
	p.record("wait_load " + state)
	return nil
}

func (p *Page) Attribute(selector, name string) (string, error) { return "", nil }

func (p *Page) TextContent(selector string) (string, error) { return "", nil }

func (p *Page) InnerHTML(selector string) (string, error) { return "", nil }

func (p *Page) InputValue(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputs[selector], nil
}

func (p *Page) IsVisible(selector string) (bool, error) { return true, nil }
func (p *Page) IsEnabled(selector string) (bool, error) { return true, nil }
func (p *Page) IsChecked(selector string) (bool, error) { return false, nil }
func (p *Page) Exists(selector string) (bool, error)    { return true, nil }
func (p *Page) Count(selector string) (int, error)      { return 1, nil }

func (p *Page) SetViewportSize(width, height int) error {
	p.record(fmt.Sprintf("viewport %dx%d", width, height))
	return nil
}

func (p *Page) VideoPath() (string, error) {
	if p.ctx.Opts.VideoDir == "" {
		return "", nil
	}
	return p.ctx.Opts.VideoDir + "/video.webm", nil
}

func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.mu.Lock()
	p.consoleFn = fn
	p.mu.Unlock()
}

// EmitConsole simulates the page printing a console message.
func (p *Page) EmitConsole(msg browser.ConsoleMessage) {
	p.mu.Lock()
	fn := p.consoleFn
	p.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
