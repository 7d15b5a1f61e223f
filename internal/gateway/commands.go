package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"time"

	"github.com/glasswing-io/glasswing/internal/session"
)

// errValidation marks bad client arguments.
var errValidation = errors.New("invalid arguments")

func validationError(msg string) error {
	return &validationErr{msg: msg}
}

type validationErr struct {
	msg string
}

func (e *validationErr) Error() string { return e.msg }
func (e *validationErr) Unwrap() error { return errValidation }

func (g *Gateway) commandHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"create_session": g.cmdCreateSession,
		"list_sessions":  g.cmdListSessions,
		"close_session":  g.cmdCloseSession,
		"event_stream":   g.cmdEventStream,
		"list_artifacts": g.cmdListArtifacts,
		"get_artifact":   g.cmdGetArtifact,
		"health":         g.cmdHealth,

		"navigate":            g.cmdNavigate,
		"screenshot":          g.cmdScreenshot,
		"click":               g.cmdClick,
		"fill":                g.cmdFill,
		"type":                g.cmdType,
		"press":               g.cmdPress,
		"evaluate":            g.cmdEvaluate,
		"get_content":         g.cmdGetContent,
		"get_url":             g.cmdGetURL,
		"wait_for_selector":   g.cmdWaitForSelector,
		"wait_for_url":        g.cmdWaitForURL,
		"wait_for_load_state": g.cmdWaitForLoadState,
		"select_option":       g.cmdSelectOption,
		"check":               g.cmdCheck,
		"uncheck":             g.cmdUncheck,
		"hover":               g.cmdHover,
		"focus":               g.cmdFocus,
		"get_attribute":       g.cmdGetAttribute,
		"get_text":            g.cmdGetText,
		"get_inner_html":      g.cmdGetInnerHTML,
		"get_input_value":     g.cmdGetInputValue,
		"is_visible":          g.cmdIsVisible,
		"is_enabled":          g.cmdIsEnabled,
		"is_checked":          g.cmdIsChecked,
		"query_selector":      g.cmdQuerySelector,
		"query_selector_all":  g.cmdQuerySelectorAll,
		"reload":              g.cmdReload,
		"go_back":             g.cmdGoBack,
		"go_forward":          g.cmdGoForward,
		"set_viewport_size":   g.cmdSetViewportSize,
		"cookies":             g.cmdCookies,
		"set_cookies":         g.cmdSetCookies,
		"clear_cookies":       g.cmdClearCookies,
		"login":               g.cmdLogin,
		"get_console_logs":    g.cmdGetConsoleLogs,
		"clear_console_logs":  g.cmdClearConsoleLogs,
		"export_console_logs": g.cmdExportConsoleLogs,
		"start_tracing":       g.cmdStartTracing,
		"stop_tracing":        g.cmdStopTracing,

		"export_storage_state": g.cmdExportStorageState,
		"import_storage_state": g.cmdImportStorageState,
		"get_video_path":       g.cmdGetVideoPath,
	}
}

func (g *Gateway) session(sessionID string) (*session.Session, error) {
	return g.registry.Get(sessionID)
}

func (g *Gateway) cmdCreateSession(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.registry.Create(session.CreateOptions{
		WorkspaceID: args.String("workspace_id", ""),
		UserID:      args.String("user_id", ""),
		Label:       args.String("label", ""),
		RecordHAR:   args.BoolPtr("record_har"),
		HARContent:  args.String("har_content", ""),
		HARPath:     args.String("har_path", ""),
	})
	if err != nil {
		return nil, err
	}

	var harPath any
	if sess.Meta.HARPath != "" {
		harPath = sess.Meta.HARPath
	}
	return map[string]any{
		"session_id":    sess.ID,
		"workspace_id":  sess.Meta.WorkspaceID,
		"workspace_dir": sess.Meta.WorkspaceDir,
		"artifacts_dir": sess.Meta.ArtifactsDir,
		"har_enabled":   sess.Meta.HAREnabled,
		"har_path":      harPath,
	}, nil
}

func (g *Gateway) cmdListSessions(ctx context.Context, sessionID string, args Args) (any, error) {
	sessions := make([]map[string]any, 0)
	for _, sess := range g.registry.List() {
		sessions = append(sessions, map[string]any{
			"session_id":   sess.ID,
			"workspace_id": sess.Meta.WorkspaceID,
			"user_id":      sess.Meta.UserID,
			"label":        sess.Meta.Label,
			"created_at":   unixSeconds(sess.CreatedAt),
			"last_used":    unixSeconds(sess.LastUsed()),
		})
	}
	return map[string]any{"sessions": sessions}, nil
}

func (g *Gateway) cmdCloseSession(ctx context.Context, sessionID string, args Args) (any, error) {
	g.registry.Close(sessionID, "client_request")
	return map[string]any{"closed": sessionID}, nil
}

func (g *Gateway) cmdEventStream(ctx context.Context, sessionID string, args Args) (any, error) {
	enabled := args.Bool("enabled", true)
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.SetEventStream(enabled)
	return map[string]any{"enabled": enabled}, nil
}

func (g *Gateway) artifactURL(workspaceID, relPath string) string {
	if g.opts.ArtifactBaseURL == "" || workspaceID == "" {
		return ""
	}
	escaped := (&url.URL{Path: relPath}).EscapedPath()
	return g.opts.ArtifactBaseURL + "/artifacts/" + workspaceID + "/" + escaped
}

func (g *Gateway) cmdListArtifacts(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := g.artifacts.List(sess.Meta.ArtifactsDir)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"path":  e.Path,
			"size":  e.Size,
			"mtime": e.MTime,
		}
		if u := g.artifactURL(sess.Meta.WorkspaceID, e.Path); u != "" {
			item["http_url"] = u
		}
		items = append(items, item)
	}
	return map[string]any{"artifacts": items}, nil
}

func (g *Gateway) cmdGetArtifact(ctx context.Context, sessionID string, args Args) (any, error) {
	sess, err := g.session(sessionID)
	if err != nil {
		return nil, err
	}
	relPath := args.String("path", "")
	if relPath == "" {
		return nil, validationError("path is required")
	}

	content, err := g.artifacts.Read(sess.Meta.ArtifactsDir, relPath)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"path":           relPath,
		"size":           content.Size,
		"truncated":      content.Truncated,
		"content_base64": base64.StdEncoding.EncodeToString(content.Data),
	}
	if u := g.artifactURL(sess.Meta.WorkspaceID, relPath); u != "" {
		result["http_url"] = u
	}
	return result, nil
}

func (g *Gateway) cmdHealth(ctx context.Context, sessionID string, args Args) (any, error) {
	h := g.opts.Health
	return map[string]any{
		"status":                 "healthy",
		"sessions":               g.registry.Count(),
		"max_sessions":           g.registry.MaxSessions(),
		"browser":                h.Browser,
		"headless":               h.Headless,
		"pool_enabled":           g.pool.Enabled(),
		"pool_size":              g.pool.Len(),
		"artifact_root":          h.ArtifactRoot,
		"har_enabled":            h.HAREnabled,
		"har_content":            h.HARContent,
		"console_stream_enabled": g.opts.ConsoleStream,
		"artifact_http_enabled":  h.ArtifactHTTPEnabled,
		"artifact_http_addr":     h.ArtifactHTTPAddr,
	}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
