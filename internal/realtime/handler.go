// Package realtime carries session lifecycle events between the session
// manager and a browser client over a websocket, and provides the
// client-side reconnect policy.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/atendai/zapagent/internal/domain"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// SessionController is the slice of the session manager the handler needs.
type SessionController interface {
	StartAuth(ctx context.Context, userID string) error
	Subscribe() (<-chan domain.Event, func())
}

// Command is an inbound frame from the browser.
type Command struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Handler upgrades connections to websockets and relays session events.
// A connection binds to a user ID on its first start-auth command; only
// events for the bound identity are forwarded. Closing the connection does
// not touch the underlying session: a reconnecting browser reattaches to
// whatever session is still live.
type Handler struct {
	sessions      SessionController
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler backed by the given controller.
func NewHandler(sessions SessionController, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()
	slog.Info("realtime: connection request", "conn_id", connID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("realtime: failed to accept websocket", "conn_id", connID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "channel closed"); closeErr != nil {
			slog.Debug("realtime: failed to close websocket", "conn_id", connID, "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.sessions.Subscribe()
	defer unsubscribe()

	commands := make(chan Command)
	go h.readLoop(ctx, ws, commands, connID)

	boundID := ""
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				slog.Info("realtime: connection closed", "conn_id", connID, "user_id", boundID)
				return
			}
			boundID = h.handleCommand(ctx, ws, cmd, boundID, connID)

		case ev := <-events:
			if boundID == "" || ev.UserID != boundID {
				continue
			}
			if err := writeJSON(ctx, ws, ev); err != nil {
				slog.Debug("realtime: event write failed", "conn_id", connID, "error", err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, ws *websocket.Conn, cmd Command, boundID, connID string) string {
	switch cmd.Type {
	case "start-auth":
		if cmd.UserID == "" {
			h.writeError(ctx, ws, "", "userId is required")
			return boundID
		}
		if boundID == "" {
			boundID = cmd.UserID
			slog.Info("realtime: channel bound", "conn_id", connID, "user_id", boundID)
		} else if boundID != cmd.UserID {
			h.writeError(ctx, ws, cmd.UserID, "channel already bound to another user")
			return boundID
		}
		if err := h.sessions.StartAuth(ctx, cmd.UserID); err != nil {
			slog.Error("realtime: start-auth failed", "conn_id", connID, "user_id", cmd.UserID, "error", err)
			h.writeError(ctx, ws, cmd.UserID, err.Error())
		}
	default:
		slog.Debug("realtime: unknown command", "conn_id", connID, "type", cmd.Type)
	}
	return boundID
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, commands chan<- Command, connID string) {
	defer close(commands)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("realtime: websocket closed by client", "conn_id", connID)
			} else if ctx.Err() == nil {
				slog.Warn("realtime: websocket read error", "conn_id", connID, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Debug("realtime: malformed command frame", "conn_id", connID, "error", err)
			continue
		}

		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, userID, message string) {
	ev := domain.Event{Kind: domain.EventError, UserID: userID, Error: message}
	if err := writeJSON(ctx, ws, ev); err != nil {
		slog.Debug("realtime: error event write failed", "error", err)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("realtime: origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
