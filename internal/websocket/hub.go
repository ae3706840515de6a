// Package websocket pushes live preview events to connected browsers.
//
// The hub fans out two kinds of message: a frame message each time the
// sandbox installs a new frame, and a notification message for every
// user-facing notification. Delivery is best effort. A client whose send
// buffer is full misses messages rather than stalling the sender.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/notify"
	"github.com/conneroisu/codecraft/internal/sandbox"
)

// Message types.
const (
	TypeFrame        = "frame"
	TypeNotification = "notification"
	TypePong         = "pong"
)

// Message is the JSON envelope sent to browsers.
type Message struct {
	Type       string    `json:"type"`
	Generation uint64    `json:"generation,omitempty"`
	Level      string    `json:"level,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// OriginValidator decides whether a browser origin may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// Options tunes a Hub. Zero values take defaults.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	// InboundRate and InboundBurst bound client to server messages.
	InboundRate  float64
	InboundBurst int
	ReadLimit    int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.InboundRate <= 0 {
		o.InboundRate = 10
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = 20
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	return o
}

// Client is one connected browser.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	remote  string
	ctx     context.Context
	cancel  context.CancelFunc
}

// Hub tracks connected clients and broadcasts to them.
type Hub struct {
	validator OriginValidator
	logger    logging.Logger
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	clients   map[*Client]struct{}
	lastFrame uint64
	shutdown  bool

	wg sync.WaitGroup
}

// NewHub returns a running hub. validator is required.
func NewHub(validator OriginValidator, logger logging.Logger, opts Options) *Hub {
	if validator == nil {
		panic("websocket: origin validator is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		validator: validator,
		logger:    logger.WithComponent("websocket"),
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[*Client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request. Requests from disallowed origins get
// 403; requests after Shutdown get 503.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.IsShutdown() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !h.validator.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// The origin was checked above.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	ctx, cancel := context.WithCancel(h.ctx)
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.opts.InboundRate), h.opts.InboundBurst),
		remote:  r.RemoteAddr,
		ctx:     ctx,
		cancel:  cancel,
	}

	if !h.register(c) {
		cancel()
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		return
	}
	h.logger.Debug(ctx, "WebSocket client connected", "remote", c.remote, "clients", h.Clients())

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)

	if h.lastFrame > 0 {
		if data, err := json.Marshal(Message{Type: TypeFrame, Generation: h.lastFrame, Timestamp: time.Now()}); err == nil {
			c.send <- data
		}
	}
	return true
}

func (h *Hub) unregister(c *Client, status websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	_ = c.conn.Close(status, reason)
	h.wg.Done()
	h.logger.Debug(context.Background(), "WebSocket client disconnected", "remote", c.remote)
}

func (h *Hub) readLoop(c *Client) {
	status, reason := websocket.StatusNormalClosure, ""
	defer func() { h.unregister(c, status, reason) }()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && c.ctx.Err() == nil {
				h.logger.Debug(c.ctx, "WebSocket read ended", "remote", c.remote, "error", err.Error())
			}
			if h.ctx.Err() != nil {
				status, reason = websocket.StatusGoingAway, "Server shutdown"
			}
			return
		}
		if !c.limiter.Allow() {
			h.logger.Warn(c.ctx, nil, "WebSocket message rate exceeded", "remote", c.remote)
			status, reason = websocket.StatusPolicyViolation, "rate limit exceeded"
			return
		}
		h.handleInbound(c, data)
	}
}

// handleInbound answers {"type":"ping"}; anything else is ignored.
func (h *Hub) handleInbound(c *Client, data []byte) {
	var in struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.Type != "ping" {
		return
	}
	if out, err := json.Marshal(Message{Type: TypePong, Timestamp: time.Now()}); err == nil {
		h.enqueue(c, out)
	}
}

func (h *Hub) writeLoop(c *Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, h.opts.WriteTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.unregister(c, websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, h.opts.WriteTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				h.unregister(c, websocket.StatusGoingAway, "ping failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (h *Hub) enqueue(c *Client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Broadcast sends msg to every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal broadcast message", "type", msg.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !h.enqueue(c, data) {
			h.logger.Debug(h.ctx, "Dropped message for slow client", "remote", c.remote, "type", msg.Type)
		}
	}
}

// PublishFrame announces a new sandbox frame. New clients receive the most
// recent generation on connect.
func (h *Hub) PublishFrame(f sandbox.Frame) {
	h.mu.Lock()
	if f.Generation > h.lastFrame {
		h.lastFrame = f.Generation
	}
	h.mu.Unlock()
	h.Broadcast(Message{Type: TypeFrame, Generation: f.Generation, Timestamp: f.CreatedAt})
}

// Attach subscribes the hub to every frame sb installs.
func (h *Hub) Attach(sb *sandbox.Sandbox) (cancel func()) {
	return sb.Subscribe(h.PublishFrame)
}

// Notify implements notify.Notifier.
func (h *Hub) Notify(_ context.Context, n notify.Notification) {
	h.Broadcast(Message{
		Type:      TypeNotification,
		Level:     string(n.Level),
		Message:   n.Message,
		Timestamp: n.Time,
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsShutdown reports whether Shutdown has been called.
func (h *Hub) IsShutdown() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shutdown
}

// Shutdown disconnects every client and waits for their loops to finish or
// ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return nil
	}
	h.shutdown = true
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info(ctx, "WebSocket hub shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ notify.Notifier = (*Hub)(nil)
