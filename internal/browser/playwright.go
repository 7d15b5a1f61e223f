package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"
)

// LaunchOptions selects and tunes the browser engine.
type LaunchOptions struct {
	Kind       string // "chromium", "firefox" or "webkit"
	Headless   bool
	Channel    string // chromium release channel, chromium only
	Executable string // explicit browser binary, chromium only
}

// PlaywrightProvider drives a real browser through the playwright driver.
type PlaywrightProvider struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywright installs the driver if needed, starts it and launches the
// configured browser.
func NewPlaywright(opts LaunchOptions) (*PlaywrightProvider, error) {
	runOpts := &playwright.RunOptions{Verbose: false}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch opts.Kind {
	case "", "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		pw.Stop()
		return nil, fmt.Errorf("unsupported browser kind: %q", opts.Kind)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Kind == "" || opts.Kind == "chromium" {
		if opts.Executable != "" {
			launchOpts.ExecutablePath = playwright.String(opts.Executable)
		} else if opts.Channel != "" {
			launchOpts.Channel = playwright.String(opts.Channel)
		}
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &PlaywrightProvider{pw: pw, browser: browser}, nil
}

func (p *PlaywrightProvider) NewContext(opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}

	if len(opts.StorageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(opts.StorageState, &state); err != nil {
			return nil, fmt.Errorf("parse storage state: %w", err)
		}
		ctxOpts.StorageState = &state
	}
	if opts.RecordHARPath != "" {
		ctxOpts.RecordHarPath = playwright.String(opts.RecordHARPath)
		if opts.HARContent != "" {
			policy := playwright.HarContentPolicy(opts.HARContent)
			ctxOpts.RecordHarContent = &policy
		}
	}
	if opts.VideoDir != "" {
		if err := os.MkdirAll(opts.VideoDir, 0o755); err != nil {
			return nil, fmt.Errorf("create video dir: %w", err)
		}
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}

	ctx, err := p.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	return &playwrightContext{ctx: ctx}, nil
}

func (p *PlaywrightProvider) Close() error {
	if err := p.browser.Close(); err != nil {
		p.pw.Stop()
		return fmt.Errorf("close browser: %w", err)
	}
	if err := p.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

type playwrightContext struct {
	ctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Pages() []Page {
	raw := c.ctx.Pages()
	pages := make([]Page, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, &playwrightPage{page: p})
	}
	return pages
}

func (c *playwrightContext) Cookies() ([]Cookie, error) {
	raw, err := c.ctx.Cookies()
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		ck := Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			HTTPOnly: rc.HttpOnly,
			Secure:   rc.Secure,
		}
		if rc.SameSite != nil {
			ck.SameSite = string(*rc.SameSite)
		}
		cookies = append(cookies, ck)
	}
	return cookies, nil
}

func (c *playwrightContext) AddCookies(cookies []Cookie) error {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, ck := range cookies {
		oc := playwright.OptionalCookie{Name: ck.Name, Value: ck.Value}
		if ck.URL != "" {
			oc.URL = playwright.String(ck.URL)
		}
		if ck.Domain != "" {
			oc.Domain = playwright.String(ck.Domain)
		}
		if ck.Path != "" {
			oc.Path = playwright.String(ck.Path)
		}
		if ck.Expires != 0 {
			oc.Expires = playwright.Float(ck.Expires)
		}
		if ck.HTTPOnly {
			oc.HttpOnly = playwright.Bool(true)
		}
		if ck.Secure {
			oc.Secure = playwright.Bool(true)
		}
		if ck.SameSite != "" {
			same := playwright.SameSiteAttribute(ck.SameSite)
			oc.SameSite = &same
		}
		out = append(out, oc)
	}
	return c.ctx.AddCookies(out)
}

func (c *playwrightContext) ClearCookies() error {
	return c.ctx.ClearCookies()
}

func (c *playwrightContext) StorageState(path string) (json.RawMessage, error) {
	var (
		state *playwright.StorageState
		err   error
	)
	if path != "" {
		state, err = c.ctx.StorageState(path)
	} else {
		state, err = c.ctx.StorageState()
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

func (c *playwrightContext) StartTracing(screenshots, snapshots, sources bool) error {
	return c.ctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(screenshots),
		Snapshots:   playwright.Bool(snapshots),
		Sources:     playwright.Bool(sources),
	})
}

func (c *playwrightContext) StopTracing(path string) error {
	return c.ctx.Tracing().Stop(path)
}

func (c *playwrightContext) Close() error {
	return c.ctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func waitUntil(state string) *playwright.WaitUntilState {
	if state == "" {
		return nil
	}
	s := playwright.WaitUntilState(state)
	return &s
}

func timeoutOpt(ms float64) *float64 {
	if ms <= 0 {
		return nil
	}
	return playwright.Float(ms)
}

func (p *playwrightPage) Goto(url, wait string, timeout float64) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil(wait),
		Timeout:   timeoutOpt(timeout),
	})
	return err
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) Title() (string, error) { return p.page.Title() }

func (p *playwrightPage) Content() (string, error) { return p.page.Content() }

func (p *playwrightPage) Reload(wait string) error {
	_, err := p.page.Reload(playwright.PageReloadOptions{WaitUntil: waitUntil(wait)})
	return err
}

func (p *playwrightPage) GoBack() error {
	_, err := p.page.GoBack()
	return err
}

func (p *playwrightPage) GoForward() error {
	_, err := p.page.GoForward()
	return err
}

func (p *playwrightPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *playwrightPage) Click(selector, button string, clickCount int, timeout float64) error {
	opts := playwright.PageClickOptions{Timeout: timeoutOpt(timeout)}
	if button != "" {
		b := playwright.MouseButton(button)
		opts.Button = &b
	}
	if clickCount > 1 {
		opts.ClickCount = playwright.Int(clickCount)
	}
	return p.page.Click(selector, opts)
}

func (p *playwrightPage) Fill(selector, value string, timeout float64) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{Timeout: timeoutOpt(timeout)})
}

func (p *playwrightPage) Type(selector, text string, delay, timeout float64) error {
	return p.page.Locator(selector).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   timeoutOpt(delay),
		Timeout: timeoutOpt(timeout),
	})
}

func (p *playwrightPage) Press(selector, key string) error {
	if selector == "" {
		return p.page.Keyboard().Press(key)
	}
	return p.page.Locator(selector).Press(key)
}

func (p *playwrightPage) Check(selector string) error   { return p.page.Check(selector) }
func (p *playwrightPage) Uncheck(selector string) error { return p.page.Uncheck(selector) }
func (p *playwrightPage) Hover(selector string) error   { return p.page.Hover(selector) }
func (p *playwrightPage) Focus(selector string) error   { return p.page.Focus(selector) }

func (p *playwrightPage) SelectOption(selector string, target SelectTarget) error {
	values := playwright.SelectOptionValues{}
	switch {
	case target.Value != nil:
		values.Values = &[]string{*target.Value}
	case target.Label != nil:
		values.Labels = &[]string{*target.Label}
	case target.Index != nil:
		values.Indexes = &[]int{*target.Index}
	}
	_, err := p.page.SelectOption(selector, values)
	return err
}

func (p *playwrightPage) Evaluate(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *playwrightPage) WaitForSelector(selector, state string, timeout float64) error {
	opts := playwright.PageWaitForSelectorOptions{Timeout: timeoutOpt(timeout)}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		opts.State = &s
	}
	_, err := p.page.WaitForSelector(selector, opts)
	return err
}

func (p *playwrightPage) WaitForURL(pattern string, timeout float64) error {
	return p.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{Timeout: timeoutOpt(timeout)})
}

func (p *playwrightPage) WaitForLoadState(state string, timeout float64) error {
	opts := playwright.PageWaitForLoadStateOptions{Timeout: timeoutOpt(timeout)}
	if state != "" {
		s := playwright.LoadState(state)
		opts.State = &s
	}
	return p.page.WaitForLoadState(opts)
}

func (p *playwrightPage) Attribute(selector, name string) (string, error) {
	return p.page.GetAttribute(selector, name)
}

func (p *playwrightPage) TextContent(selector string) (string, error) {
	return p.page.TextContent(selector)
}

func (p *playwrightPage) InnerHTML(selector string) (string, error) {
	return p.page.InnerHTML(selector)
}

func (p *playwrightPage) InputValue(selector string) (string, error) {
	return p.page.InputValue(selector)
}

func (p *playwrightPage) IsVisible(selector string) (bool, error) {
	return p.page.IsVisible(selector)
}

func (p *playwrightPage) IsEnabled(selector string) (bool, error) {
	return p.page.IsEnabled(selector)
}

func (p *playwrightPage) IsChecked(selector string) (bool, error) {
	return p.page.IsChecked(selector)
}

func (p *playwrightPage) Exists(selector string) (bool, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, err
	}
	return el != nil, nil
}

func (p *playwrightPage) Count(selector string) (int, error) {
	els, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (p *playwrightPage) SetViewportSize(width, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *playwrightPage) VideoPath() (string, error) {
	video := p.page.Video()
	if video == nil {
		return "", nil
	}
	return video.Path()
}

func (p *playwrightPage) OnConsole(fn func(ConsoleMessage)) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		out := ConsoleMessage{Type: msg.Type(), Text: msg.Text()}
		if loc := msg.Location(); loc != nil {
			out.Location = ConsoleLocation{
				URL:    loc.URL,
				Line:   loc.LineNumber,
				Column: loc.ColumnNumber,
			}
		}
		fn(out)
	})
}

func (p *playwrightPage) Close() error { return p.page.Close() }
