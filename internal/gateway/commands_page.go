package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/glasswing-io/glasswing/internal/browser"
)

func requireSelector(args Args) (string, error) {
	selector := args.String("selector", "")
	if selector == "" {
		return "", validationError("selector is required")
	}
	return selector, nil
}

func (g *Gateway) cmdNavigate(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	pageURL := args.String("url", "")
	if pageURL == "" {
		return nil, validationError("url is required")
	}

	page := sess.Page()
	if err := page.Goto(pageURL, args.String("wait_until", "networkidle"), args.Float("timeout", 30000)); err != nil {
		return nil, err
	}

	title, _ := page.Title()
	return map[string]any{"url": page.URL(), "title": title}, nil
}

func (g *Gateway) cmdScreenshot(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	path, err := g.artifacts.ResolveName(sess.Meta.ArtifactsDir, args.String("path", ""), "screenshot_"+sess.ID, ".png")
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := page.Screenshot(path, args.Bool("full_page", true)); err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "url": page.URL()}, nil
}

func (g *Gateway) cmdClick(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	err = page.Click(selector, args.String("button", "left"), args.Int("click_count", 1), args.Float("timeout", 10000))
	if err != nil {
		return nil, err
	}
	return map[string]any{"clicked": selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdFill(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := page.Fill(selector, args.String("value", ""), args.Float("timeout", 10000)); err != nil {
		return nil, err
	}
	return map[string]any{"filled": selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdType(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	err = page.Type(selector, args.String("text", ""), args.Float("delay", 0), args.Float("timeout", 10000))
	if err != nil {
		return nil, err
	}
	return map[string]any{"typed": selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdPress(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	key := args.String("key", "")
	if key == "" {
		return nil, validationError("key is required")
	}

	page := sess.Page()
	if err := page.Press(args.String("selector", ""), key); err != nil {
		return nil, err
	}
	return map[string]any{"pressed": key, "url": page.URL()}, nil
}

func (g *Gateway) cmdEvaluate(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	script := args.String("script", "")
	if script == "" {
		return nil, validationError("script is required")
	}

	page := sess.Page()
	result, err := page.Evaluate(script)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result, "url": page.URL()}, nil
}

func (g *Gateway) cmdGetContent(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	content, err := page.Content()
	if err != nil {
		return nil, err
	}
	title, _ := page.Title()
	return map[string]any{"content": content, "url": page.URL(), "title": title}, nil
}

func (g *Gateway) cmdGetURL(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	title, _ := page.Title()
	return map[string]any{"url": page.URL(), "title": title}, nil
}

func (g *Gateway) cmdWaitForSelector(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	err = page.WaitForSelector(selector, args.String("state", "visible"), args.Float("timeout", 30000))
	if err != nil {
		return nil, err
	}
	return map[string]any{"found": selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdWaitForURL(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	pattern := args.String("url", "")
	if pattern == "" {
		return nil, validationError("url is required")
	}

	page := sess.Page()
	if err := page.WaitForURL(pattern, args.Float("timeout", 30000)); err != nil {
		return nil, err
	}
	return map[string]any{"url": page.URL()}, nil
}

func (g *Gateway) cmdWaitForLoadState(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	state := args.String("state", "networkidle")

	page := sess.Page()
	if err := page.WaitForLoadState(state, args.Float("timeout", 30000)); err != nil {
		return nil, err
	}
	return map[string]any{"state": state, "url": page.URL()}, nil
}

func (g *Gateway) cmdSelectOption(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	target := browser.SelectTarget{
		Value: args.StringPtr("value"),
		Label: args.StringPtr("label"),
		Index: args.IntPtr("index"),
	}
	if target.Value == nil && target.Label == nil && target.Index == nil {
		return nil, validationError("value, label, or index is required")
	}

	page := sess.Page()
	if err := page.SelectOption(selector, target); err != nil {
		return nil, err
	}
	return map[string]any{"selected": selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdCheck(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorAction(sessionID, args, "checked", browser.Page.Check)
}

func (g *Gateway) cmdUncheck(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorAction(sessionID, args, "unchecked", browser.Page.Uncheck)
}

func (g *Gateway) cmdHover(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorAction(sessionID, args, "hovered", browser.Page.Hover)
}

func (g *Gateway) cmdFocus(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorAction(sessionID, args, "focused", browser.Page.Focus)
}

// selectorAction covers the single-selector commands that differ only in
// the method invoked and the result key.
func (g *Gateway) selectorAction(sessionID string, args Args, resultKey string, fn func(browser.Page, string) error) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := fn(page, selector); err != nil {
		return nil, err
	}
	return map[string]any{resultKey: selector, "url": page.URL()}, nil
}

func (g *Gateway) cmdGetAttribute(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector := args.String("selector", "")
	name := args.String("name", "")
	if selector == "" || name == "" {
		return nil, validationError("selector and name are required")
	}

	value, err := sess.Page().Attribute(selector, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "attribute": name, "value": value}, nil
}

func (g *Gateway) cmdGetText(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorQuery(sessionID, args, "text", browser.Page.TextContent)
}

func (g *Gateway) cmdGetInnerHTML(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorQuery(sessionID, args, "html", browser.Page.InnerHTML)
}

func (g *Gateway) cmdGetInputValue(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorQuery(sessionID, args, "value", browser.Page.InputValue)
}

func (g *Gateway) selectorQuery(sessionID string, args Args, resultKey string, fn func(browser.Page, string) (string, error)) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	value, err := fn(sess.Page(), selector)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, resultKey: value}, nil
}

func (g *Gateway) cmdIsVisible(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorPredicate(sessionID, args, "visible", browser.Page.IsVisible)
}

func (g *Gateway) cmdIsEnabled(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorPredicate(sessionID, args, "enabled", browser.Page.IsEnabled)
}

func (g *Gateway) cmdIsChecked(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorPredicate(sessionID, args, "checked", browser.Page.IsChecked)
}

func (g *Gateway) cmdQuerySelector(ctx context.Context, sessionID string, args Args) (any, error) {
	return g.selectorPredicate(sessionID, args, "found", browser.Page.Exists)
}

func (g *Gateway) selectorPredicate(sessionID string, args Args, resultKey string, fn func(browser.Page, string) (bool, error)) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	value, err := fn(sess.Page(), selector)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, resultKey: value}, nil
}

func (g *Gateway) cmdQuerySelectorAll(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	selector, err := requireSelector(args)
	if err != nil {
		return nil, err
	}

	count, err := sess.Page().Count(selector)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "count": count}, nil
}

func (g *Gateway) cmdReload(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := page.Reload(args.String("wait_until", "networkidle")); err != nil {
		return nil, err
	}
	return map[string]any{"url": page.URL()}, nil
}

func (g *Gateway) cmdGoBack(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := page.GoBack(); err != nil {
		return nil, err
	}
	return map[string]any{"url": page.URL()}, nil
}

func (g *Gateway) cmdGoForward(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	page := sess.Page()
	if err := page.GoForward(); err != nil {
		return nil, err
	}
	return map[string]any{"url": page.URL()}, nil
}

func (g *Gateway) cmdSetViewportSize(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	width := args.Int("width", 1280)
	height := args.Int("height", 720)

	if err := sess.Page().SetViewportSize(width, height); err != nil {
		return nil, err
	}
	return map[string]any{"width": width, "height": height}, nil
}

func (g *Gateway) cmdCookies(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	cookies, err := sess.Context().Cookies()
	if err != nil {
		return nil, err
	}
	return map[string]any{"cookies": cookies}, nil
}

func (g *Gateway) cmdSetCookies(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	var cookies []browser.Cookie
	if raw, ok := args["cookies"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, validationError("invalid cookies")
		}
		if err := json.Unmarshal(data, &cookies); err != nil {
			return nil, validationError("invalid cookies")
		}
	}

	if err := sess.Context().AddCookies(cookies); err != nil {
		return nil, err
	}
	return map[string]any{"set": len(cookies)}, nil
}

func (g *Gateway) cmdClearCookies(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	if err := sess.Context().ClearCookies(); err != nil {
		return nil, err
	}
	return map[string]any{"cleared": true}, nil
}

func (g *Gateway) cmdLogin(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	loginURL := args.String("url", "")
	if loginURL == "" {
		return nil, validationError("url is required")
	}
	username := args.String("username", "")
	password := args.String("password", "")
	if username == "" || password == "" {
		return nil, validationError("username and password are required")
	}

	usernameSelector := args.String("username_selector", "#username")
	passwordSelector := args.String("password_selector", "#password")
	submitSelector := args.String("submit_selector", "button[type='submit']")
	successURLPattern := args.String("success_url_pattern", "")

	page := sess.Page()
	if err := page.Goto(loginURL, "networkidle", 0); err != nil {
		return nil, err
	}
	if err := page.Fill(usernameSelector, username, 0); err != nil {
		return nil, err
	}
	if err := page.Fill(passwordSelector, password, 0); err != nil {
		return nil, err
	}
	if err := page.Click(submitSelector, "", 1, 0); err != nil {
		return nil, err
	}

	if successURLPattern != "" {
		if err := page.WaitForURL(successURLPattern, 10000); err != nil {
			return nil, err
		}
	} else {
		if err := page.WaitForLoadState("networkidle", 0); err != nil {
			return nil, err
		}
	}

	title, _ := page.Title()
	return map[string]any{"logged_in": true, "url": page.URL(), "title": title}, nil
}

func (g *Gateway) cmdGetConsoleLogs(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"logs": sess.ConsoleLogs()}, nil
}

func (g *Gateway) cmdClearConsoleLogs(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.ClearConsoleLogs()
	return map[string]any{"cleared": true}, nil
}

func (g *Gateway) cmdExportConsoleLogs(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	logs := sess.ConsoleLogs()
	path, err := g.artifacts.ResolveName(sess.Meta.ArtifactsDir, args.String("path", ""), "console", ".json")
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write console export: %w", err)
	}
	return map[string]any{"path": path, "count": len(logs)}, nil
}

func (g *Gateway) cmdStartTracing(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.TracingActive() {
		return map[string]any{"started": false, "reason": "already_active"}, nil
	}

	err = sess.Context().StartTracing(
		args.Bool("screenshots", true),
		args.Bool("snapshots", true),
		args.Bool("sources", true),
	)
	if err != nil {
		return nil, err
	}
	sess.SetTracing(true)
	return map[string]any{"started": true}, nil
}

func (g *Gateway) cmdStopTracing(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.TracingActive() {
		return map[string]any{"stopped": false, "reason": "not_active"}, nil
	}

	path, err := g.artifacts.ResolveName(sess.Meta.ArtifactsDir, args.String("path", ""), "trace_"+sess.ID, ".zip")
	if err != nil {
		return nil, err
	}
	if err := sess.Context().StopTracing(path); err != nil {
		return nil, err
	}
	sess.SetTracing(false)
	return map[string]any{"stopped": true, "path": path}, nil
}

func (g *Gateway) cmdExportStorageState(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	if p := args.String("path", ""); p != "" {
		path, err := g.artifacts.ResolveName(sess.Meta.ArtifactsDir, p, "storage-state_"+sess.ID, ".json")
		if err != nil {
			return nil, err
		}
		if _, err := sess.Context().StorageState(path); err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil
	}

	state, err := sess.Context().StorageState("")
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": state}, nil
}

func (g *Gateway) cmdImportStorageState(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	var state json.RawMessage
	if p := args.String("path", ""); p != "" {
		path, err := g.artifacts.ResolveName(sess.Meta.ArtifactsDir, p, "storage-state_"+sess.ID, ".json")
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, validationError(fmt.Sprintf("Storage state file not found: %s", path))
		}
		state = data
	} else if raw, ok := args["state"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, validationError("invalid state")
		}
		state = data
	}

	if len(state) == 0 {
		return nil, validationError("state or path is required")
	}

	if err := g.registry.ReplaceContext(sess.ID, state); err != nil {
		return nil, err
	}
	return map[string]any{"imported": true}, nil
}

func (g *Gateway) cmdGetVideoPath(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	path, err := sess.Page().VideoPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return map[string]any{"path": nil}, nil
	}
	return map[string]any{"path": path}, nil
}
