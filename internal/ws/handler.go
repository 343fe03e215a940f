// Package ws implements the external duplex endpoint: one persistent
// bidirectional connection per diner, keyed by an opaque table token,
// carrying binary audio frames and JSON control/event text frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/freya-voice/voicecore/internal/metrics"
	"github.com/freya-voice/voicecore/internal/scope"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// scopeNotFoundCloseCode is sent when the table token does not resolve to
// a known scope.
const scopeNotFoundCloseCode websocket.StatusCode = 4004

// ScopeResolver resolves an opaque table token to a menu scope. Narrowed
// to the one method the handler needs so tests can substitute a fake
// without standing up an HTTP server.
type ScopeResolver interface {
	Lookup(ctx context.Context, tableToken string) (scope.Result, error)
}

// Handler upgrades incoming HTTP requests to the duplex protocol and runs
// one Controller per connection.
type Handler struct {
	orch          *orchestrator.Orchestrator
	scope         ScopeResolver
	openerPhrases map[string]string
	logger        orchestrator.Logger
	sendGreeting  bool
}

func NewHandler(orch *orchestrator.Orchestrator, resolver ScopeResolver, openerPhrases map[string]string, logger orchestrator.Logger) *Handler {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Handler{orch: orch, scope: resolver, openerPhrases: openerPhrases, logger: logger, sendGreeting: true}
}

// ServeHTTP upgrades the connection, resolves the table token, and runs
// the connection's lifetime inline. The session is created on connection
// open and destroyed on connection close.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tableToken := tableTokenFrom(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	result, err := h.scope.Lookup(ctx, tableToken)
	if err != nil {
		if errors.Is(err, scope.ErrNotFound) {
			conn.Close(scopeNotFoundCloseCode, "unknown table token")
			return
		}
		h.logger.Error("scope lookup failed", "error", err)
		conn.Close(websocket.StatusInternalError, "scope lookup failed")
		return
	}

	h.runSession(ctx, conn, result)
}

func tableTokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("table_token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.URL.Path, "/ws/")
}

// inboundMessage is the JSON shape of a text control frame.
type inboundMessage struct {
	Type string `json:"type"`
}

func (h *Handler) runSession(parentCtx context.Context, conn *websocket.Conn, sc scope.Result) {
	sessionID := uuid.NewString()
	session := h.orch.NewSession(sessionID, sc.ScopeID, sc.MenuContext, sc.Products)

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var writeMu sync.Mutex
	sendEvent := func(ev orchestrator.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}
	sendAudio := func(chunk []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageBinary, chunk)
	}

	controller := h.orch.NewController(ctx, session, h.openerPhrases, sendEvent, sendAudio)
	defer controller.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	if h.sendGreeting {
		sendEvent(orchestrator.GreetingEvent("Welcome! What can I get started for you today?"))
	}

	h.logger.Info("session started", "session_id", sessionID, "scope_id", sc.ScopeID)
	defer func() {
		h.logger.Info("session ended", "session_id", sessionID, "duration", session.Age().Round(time.Millisecond))
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return // ClientGone or normal close: controller.Close() (deferred) cancels everything rooted here.
		}

		switch msgType {
		case websocket.MessageBinary:
			controller.OnAudioFrame(data)
		case websocket.MessageText:
			h.handleControlFrame(controller, data)
		}
	}
}

func (h *Handler) handleControlFrame(controller *orchestrator.Controller, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("malformed control frame", "error", err)
		return
	}
	switch msg.Type {
	case "ping":
		controller.OnPing()
	case "audio_end":
		controller.OnAudioEndAsync()
	case "interrupt":
		controller.OnInterrupt()
	case "playback_complete":
		// Informational only; no server-side action required.
	default:
		h.logger.Debug("unrecognised control frame", "type", msg.Type)
	}
}
