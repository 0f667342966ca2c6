// Package transport exposes the relay over websockets.
// One goroutine reads each socket, the hub's delivery lane writes to it.
package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	defaultPongWait     = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultMaxFrameSize = 4096
)

// Relay is what a websocket needs from the chat service.
type Relay interface {
	Open(ctx context.Context, transport contract.Transport, remoteAddr string, since *domain.MessageID) domain.ConnectionID
	Handle(ctx context.Context, id domain.ConnectionID, line string)
	Close(id domain.ConnectionID, reason error)
}

type Options struct {
	MaxFrameSize int64
	PongWait     time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins restricts browser clients. Empty allows every origin,
	// "*" too. Requests without an Origin header (terminal clients) always pass.
	AllowedOrigins []string
}

type Handler struct {
	log      *slog.Logger
	relay    Relay
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, relay Relay, opts Options) *Handler {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = defaultMaxFrameSize
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	h := &Handler{log: log, relay: relay, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP upgrades the request and runs the read loop until the client
// leaves or the hub drops the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(ws, h.opts.WriteTimeout)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := h.relay.Open(ctx, conn, r.RemoteAddr, since)
	go h.keepAlive(ctx, conn)

	reason := h.readLoop(ctx, ws, id)
	h.relay.Close(id, reason)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, id domain.ConnectionID) error {
	ws.SetReadLimit(h.opts.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return fmt.Errorf("frame larger than %d bytes: %w", h.opts.MaxFrameSize, err)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Websocket read failed", "connection_id", id, "error", err)
			}
			return nil
		}
		if kind != websocket.TextMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		h.relay.Handle(ctx, id, string(data))
	}
}

// keepAlive pings at 9/10 of the pong wait so a live peer always answers in time.
func (h *Handler) keepAlive(ctx context.Context, conn *Conn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(h.opts.WriteTimeout); err != nil {
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	normalized := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	return lo.ContainsBy(h.opts.AllowedOrigins, func(allowed string) bool {
		allowed = strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/"))
		return allowed == "*" || allowed == normalized
	})
}

func parseSince(raw string) (*domain.MessageID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid since %q: expected a message id", raw)
	}
	return lo.ToPtr(domain.MessageID(id)), nil
}
