package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glasswing-io/glasswing/internal/store"
	"github.com/glasswing-io/glasswing/pkg/protocol"
)

// Args is the decoded command argument object.
type Args map[string]any

// String returns a string argument or the fallback when absent.
func (a Args) String(key, fallback string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return fallback
}

// Bool returns a bool argument or the fallback when absent.
func (a Args) Bool(key string, fallback bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return fallback
}

// BoolPtr returns a bool argument, or nil when absent.
func (a Args) BoolPtr(key string) *bool {
	if v, ok := a[key].(bool); ok {
		return &v
	}
	return nil
}

// Float returns a numeric argument or the fallback when absent. JSON
// numbers always decode as float64.
func (a Args) Float(key string, fallback float64) float64 {
	if v, ok := a[key].(float64); ok {
		return v
	}
	return fallback
}

// Int returns a numeric argument as int or the fallback when absent.
func (a Args) Int(key string, fallback int) int {
	if v, ok := a[key].(float64); ok {
		return int(v)
	}
	return fallback
}

// IntPtr returns a numeric argument as int, or nil when absent.
func (a Args) IntPtr(key string) *int {
	if v, ok := a[key].(float64); ok {
		i := int(v)
		return &i
	}
	return nil
}

// StringPtr returns a string argument, or nil when absent.
func (a Args) StringPtr(key string) *string {
	if v, ok := a[key].(string); ok {
		return &v
	}
	return nil
}

// handleMessage decodes one request, runs its handler and writes the
// response or error envelope. A failing handler never tears the
// connection down.
func (g *Gateway) handleMessage(ctx context.Context, c *wsConn, defaultSessionID string, data []byte) {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		_ = c.send(protocol.ErrorMessage{
			Type:  protocol.TypeError,
			Error: fmt.Sprintf("Invalid JSON: %v", err),
		})
		return
	}

	msgID := req.ID
	if msgID == "" {
		msgID = uuid.New().String()[:8]
	}

	args := Args{}
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			_ = c.send(protocol.ErrorMessage{
				Type:  protocol.TypeError,
				ID:    &msgID,
				Error: fmt.Sprintf("Invalid JSON: %v", err),
			})
			return
		}
	}

	target := args.String("session_id", "")
	if target == "" {
		target = defaultSessionID
	}

	handler, ok := g.handlers[req.Command]
	if !ok {
		_ = c.send(protocol.ErrorMessage{
			Type:  protocol.TypeError,
			ID:    &msgID,
			Error: fmt.Sprintf("Unknown command: %s", req.Command),
		})
		return
	}

	g.emitToSession(target, protocol.EventCommandStarted, map[string]any{
		"command": req.Command,
	})

	result, err := handler(ctx, target, args)
	if err != nil {
		g.logger.Error("command error", "command", req.Command, "session_id", target, "error", err)
		g.emitToSession(target, protocol.EventCommandFailed, map[string]any{
			"command": req.Command,
			"error":   err.Error(),
		})
		g.recordAudit(target, req.Command, false, err.Error())
		_ = c.send(protocol.ErrorMessage{
			Type:  protocol.TypeError,
			ID:    &msgID,
			Error: err.Error(),
		})
		return
	}

	g.emitToSession(target, protocol.EventCommandFinished, map[string]any{
		"command": req.Command,
		"result":  result,
	})

	// The creating connection owns the new session and receives its
	// events from now on.
	if req.Command == "create_session" {
		if m, ok := result.(map[string]any); ok {
			if newID, ok := m["session_id"].(string); ok && newID != "" {
				g.registerOwner(newID, c)
			}
		}
	}

	g.recordAudit(target, req.Command, true, "")

	_ = c.send(protocol.Response{
		Type:    protocol.TypeResponse,
		ID:      msgID,
		Success: true,
		Data:    result,
	})
}

// recordAudit writes the command outcome to the audit store. Failures
// are logged and dropped; auditing never blocks the command path.
func (g *Gateway) recordAudit(sessionID, command string, success bool, errMsg string) {
	if g.audit == nil {
		return
	}

	workspaceID := ""
	if sess, ok := g.registry.Peek(sessionID); ok {
		workspaceID = sess.Meta.WorkspaceID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev := &store.AuditEvent{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Command:     command,
		Success:     success,
		Error:       errMsg,
		CreatedAt:   time.Now(),
	}
	if err := g.audit.RecordEvent(ctx, ev); err != nil {
		g.logger.Warn("failed to record audit event", "command", command, "error", err)
	}
}
