// Package browser abstracts the browser engine behind capability
// interfaces so the rest of the server never touches the driver directly.
package browser

import "encoding/json"

// ContextOptions configures a new browser context.
type ContextOptions struct {
	// StorageState is a serialized storage-state document (cookies and
	// origin storage) to seed the context with.
	StorageState json.RawMessage

	// RecordHARPath enables HAR network recording to the given file.
	RecordHARPath string

	// HARContent controls HAR body capture: "omit", "embed" or "attach".
	HARContent string

	// VideoDir enables video recording of every page in the context.
	VideoDir string
}

// Cookie mirrors the browser cookie shape used on the wire.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ConsoleLocation is the source position of a console message.
type ConsoleLocation struct {
	URL    string `json:"url"`
	Line   int    `json:"lineNumber"`
	Column int    `json:"columnNumber"`
}

// ConsoleMessage is a single console entry captured from a page.
type ConsoleMessage struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Location ConsoleLocation `json:"location"`
}

// SelectTarget names the option(s) to select in a <select> element.
// Exactly one field should be set.
type SelectTarget struct {
	Value *string
	Label *string
	Index *int
}

// Provider launches browser contexts. Implementations own the underlying
// browser process and must be safe for concurrent use.
type Provider interface {
	// NewContext creates an isolated browsing context.
	NewContext(opts ContextOptions) (Context, error)

	// Close shuts down the browser and releases the driver.
	Close() error
}

// Context is an isolated cookie/storage universe holding one or more pages.
type Context interface {
	NewPage() (Page, error)
	Pages() []Page

	Cookies() ([]Cookie, error)
	AddCookies(cookies []Cookie) error
	ClearCookies() error

	// StorageState serializes cookies and origin storage. When path is
	// non-empty the state is also written to that file.
	StorageState(path string) (json.RawMessage, error)

	StartTracing(screenshots, snapshots, sources bool) error
	StopTracing(path string) error

	Close() error
}

// Page is a single tab. Timeouts are milliseconds; zero means the
// engine default.
type Page interface {
	Goto(url, waitUntil string, timeout float64) error
	URL() string
	Title() (string, error)
	Content() (string, error)
	Reload(waitUntil string) error
	GoBack() error
	GoForward() error

	Screenshot(path string, fullPage bool) error

	Click(selector, button string, clickCount int, timeout float64) error
	Fill(selector, value string, timeout float64) error
	Type(selector, text string, delay, timeout float64) error
	// Press sends a key to the element matching selector, or to the
	// keyboard when selector is empty.
	Press(selector, key string) error
	Check(selector string) error
	Uncheck(selector string) error
	Hover(selector string) error
	Focus(selector string) error
	SelectOption(selector string, target SelectTarget) error

	Evaluate(script string) (any, error)

	WaitForSelector(selector, state string, timeout float64) error
	WaitForURL(pattern string, timeout float64) error
	WaitForLoadState(state string, timeout float64) error

	Attribute(selector, name string) (string, error)
	TextContent(selector string) (string, error)
	InnerHTML(selector string) (string, error)
	InputValue(selector string) (string, error)
	IsVisible(selector string) (bool, error)
	IsEnabled(selector string) (bool, error)
	IsChecked(selector string) (bool, error)
	Exists(selector string) (bool, error)
	Count(selector string) (int, error)

	SetViewportSize(width, height int) error

	// VideoPath returns the recording file for this page, or "" when
	// video recording is not enabled.
	VideoPath() (string, error)

	// OnConsole registers fn for every console message the page emits.
	OnConsole(fn func(ConsoleMessage))

	Close() error
}
