package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mssola/useragent"

	"beacon/internal/realtime/hub"
	"beacon/internal/realtime/models"
	"beacon/internal/realtime/session"
	"beacon/pkg/platform/middleware/request"
	"beacon/pkg/requestcontext"
)

const (
	defaultSendBuffer    = 64
	defaultInboundBuffer = 16
	defaultMaxMessage    = 64 << 10
	defaultPongWait      = 60 * time.Second
	defaultWriteWait     = 10 * time.Second
)

var errUnknownEvent = errors.New("unknown event")

// Handler upgrades HTTP requests to websocket connections and runs one
// session per connection.
type Handler struct {
	deps     session.Deps
	upgrader websocket.Upgrader

	sendBuffer    int
	inboundBuffer int
	maxMessage    int64
	pongWait      time.Duration
	pingInterval  time.Duration
	writeWait     time.Duration

	mu      sync.Mutex
	clients map[string]*client
}

type Option func(*Handler)

// WithAllowedOrigins restricts the Origin header. Empty or "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o == "*" {
				return
			}
			if o != "" {
				allowed[o] = struct{}{}
			}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// WithSendBuffer sets how many frames may queue per connection before new
// frames are dropped.
func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithKeepalive sets the pong deadline; pings go out at 9/10 of it.
func WithKeepalive(pongWait time.Duration) Option {
	return func(h *Handler) {
		if pongWait > 0 {
			h.pongWait = pongWait
		}
	}
}

// New constructs a websocket handler. Rooms, presence and subscriptions are
// required; a nil logger falls back to slog.Default.
func New(deps session.Deps, opts ...Option) (*Handler, error) {
	if deps.Rooms == nil || deps.Presence == nil || deps.Subscriptions == nil {
		return nil, errors.New("rooms, presence and subscriptions are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:    defaultSendBuffer,
		inboundBuffer: defaultInboundBuffer,
		maxMessage:    defaultMaxMessage,
		pongWait:      defaultPongWait,
		writeWait:     defaultWriteWait,
		clients:       make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.pingInterval = h.pongWait * 9 / 10
	return h, nil
}

// Register mounts the socket endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/socket", h.ServeWS)
}

// ServeWS blocks for the lifetime of the connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.deps.Logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn, h.sendBuffer)
	ctx, cancel := context.WithCancel(requestcontext.WithConnectionID(context.WithoutCancel(r.Context()), c.id))
	defer cancel()

	sess, err := session.New(c, h.deps)
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "failed to start session", "error", err)
		_ = conn.Close()
		return
	}

	h.track(c)
	defer h.untrack(c)
	h.deps.Metrics.ConnectionOpened()
	defer h.deps.Metrics.ConnectionClosed()
	h.logConnect(ctx, r, c.id)

	inbound := make(chan models.Inbound, h.inboundBuffer)
	var wg sync.WaitGroup
	wg.Go(func() { sess.Run(ctx, inbound) })
	wg.Go(func() { h.writePump(c) })

	h.readPump(ctx, c, inbound)
	close(inbound)
	c.close()
	wg.Wait()
	_ = conn.Close()

	h.deps.Logger.InfoContext(ctx, "websocket disconnected", "connection_id", c.id)
}

// Close ends every open connection. Sessions run their disconnect cleanup as
// the read pumps fail.
func (h *Handler) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		_ = c.conn.Close()
	}
}

func (h *Handler) track(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Handler) untrack(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

func (h *Handler) readPump(ctx context.Context, c *client, inbound chan<- models.Inbound) {
	conn := c.conn
	conn.SetReadLimit(h.maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.deps.Logger.DebugContext(ctx, "websocket read ended", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))

		in, err := decodeInbound(data)
		if err != nil {
			reason := "decode"
			if errors.Is(err, errUnknownEvent) {
				reason = "unknown_event"
			}
			h.deps.Metrics.IncrementRejected(reason)
			if frame, encErr := hub.Encode(models.EventError, map[string]string{"message": err.Error()}); encErr == nil {
				c.Send(frame)
			}
			continue
		}

		select {
		case inbound <- in:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait))
			return
		}
	}
}

func (h *Handler) logConnect(ctx context.Context, r *http.Request, connID string) {
	ua := useragent.New(r.UserAgent())
	browser, version := ua.Browser()
	h.deps.Logger.InfoContext(ctx, "websocket connected",
		"connection_id", connID,
		"client_ip", request.ClientIPFromRequest(r),
		"browser", browser,
		"browser_version", version,
		"os", ua.OS(),
		"mobile", ua.Mobile(),
		"bot", ua.Bot(),
	)
}

// decodeInbound accepts {"event": name, "data": {...}} and the array form
// [name, {...}] emitted by older socket clients.
func decodeInbound(data []byte) (models.Inbound, error) {
	var frame models.Frame
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil || len(parts) == 0 {
			return models.Inbound{}, errors.New("malformed frame")
		}
		if err := json.Unmarshal(parts[0], &frame.Event); err != nil {
			return models.Inbound{}, errors.New("malformed frame")
		}
		if len(parts) > 1 {
			frame.Data = parts[1]
		}
	} else if err := json.Unmarshal(trimmed, &frame); err != nil {
		return models.Inbound{}, errors.New("malformed frame")
	}

	var kind models.InboundKind
	switch frame.Event {
	case models.EventJoin:
		kind = models.InboundJoin
	case models.EventLeave:
		kind = models.InboundLeave
	default:
		return models.Inbound{}, errUnknownEvent
	}

	var req models.RoomRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return models.Inbound{}, errors.New("malformed " + frame.Event + " payload")
		}
	}
	return models.Inbound{Kind: kind, Request: req}, nil
}
