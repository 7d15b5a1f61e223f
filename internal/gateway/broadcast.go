package gateway

import (
	"time"

	"github.com/glasswing-io/glasswing/pkg/protocol"
)

// registerOwner subscribes a connection to a session's event stream.
func (g *Gateway) registerOwner(sessionID string, c *wsConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	owners, ok := g.owners[sessionID]
	if !ok {
		owners = make(map[string]*wsConn)
		g.owners[sessionID] = owners
	}
	owners[c.id] = c
}

// unregisterConn drops a connection from every session it owns.
func (g *Gateway) unregisterConn(c *wsConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for sessionID, owners := range g.owners {
		delete(owners, c.id)
		if len(owners) == 0 {
			delete(g.owners, sessionID)
		}
	}
}

// dropSession removes all ownership records for a closed session.
func (g *Gateway) dropSession(sessionID string) {
	g.mu.Lock()
	delete(g.owners, sessionID)
	g.mu.Unlock()
}

// eventEnabled reports whether events should flow for a session: the
// global switch gates everything, the per-session flag gates its own.
func (g *Gateway) eventEnabled(sessionID string) bool {
	if !g.opts.EventStream {
		return false
	}
	if sess, ok := g.registry.Peek(sessionID); ok {
		return sess.EventStreamEnabled()
	}
	return true
}

func eventPayload(event, sessionID string, data any) protocol.Event {
	return protocol.Event{
		Type:      protocol.TypeEvent,
		Event:     event,
		SessionID: sessionID,
		TS:        float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      data,
	}
}

// emitToSession fans an event out to every connection that owns the
// session. Dead connections are dropped from the owner set.
func (g *Gateway) emitToSession(sessionID, event string, data any) {
	if !g.eventEnabled(sessionID) {
		return
	}

	g.mu.RLock()
	owners := make([]*wsConn, 0, len(g.owners[sessionID]))
	for _, c := range g.owners[sessionID] {
		owners = append(owners, c)
	}
	g.mu.RUnlock()

	payload := eventPayload(event, sessionID, data)
	for _, c := range owners {
		if err := c.send(payload); err != nil {
			g.logger.Debug("failed to emit event, dropping subscriber", "conn_id", c.id, "error", err)
			g.unregisterConn(c)
		}
	}
}
